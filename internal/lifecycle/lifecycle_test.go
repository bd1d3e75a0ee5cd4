package lifecycle

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
)

func TestSignalsForwardsSIGHUPAsReloadConfig(t *testing.T) {
	mbox := actor.NewMailbox[Event](1)
	signals := NewSignals(mbox.Sender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- signals.Run(ctx) }()

	syscall.Kill(syscall.Getpid(), syscall.SIGHUP)

	select {
	case ev := <-mbox.Recv():
		if ev != EventReloadConfig {
			t.Fatalf("got event %v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload event")
	}
	cancel()
	<-done
}

func TestSignalsForwardsSIGTERMAsTerminateAndStops(t *testing.T) {
	mbox := actor.NewMailbox[Event](1)
	signals := NewSignals(mbox.Sender())

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- signals.Run(ctx) }()

	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case ev := <-mbox.Recv():
		if ev != EventTerminate {
			t.Fatalf("got event %v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminate event")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal actor did not return after terminate")
	}
}

func TestSupervisorReloadRebuildsStackWithoutStopping(t *testing.T) {
	var builds int32

	build := func(genCtx context.Context) (*actor.Runtime, error) {
		n := atomic.AddInt32(&builds, 1)
		rt := actor.NewRuntime(nil, 200*time.Millisecond)
		rt.Register(actor.NewActorFunc("gen-worker", func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
		_ = n
		return rt, nil
	}

	sup := NewSupervisor(nil, build)

	ctx, cancel := context.WithCancel(context.Background())
	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGHUP)
	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&builds) < 2 {
		t.Fatalf("expected reload to trigger a rebuild, got %d builds", builds)
	}

	cancel()
	select {
	case err := <-supDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after context cancellation")
	}
}
