package c8y

import (
	"context"
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/mapper"
)

func TestReconcilerWindowExpirySuppressesIdenticalAndClearsMissing(t *testing.T) {
	sink := actor.NewMailbox[Outcome](16)
	r := NewReconciler(nil, 30*time.Millisecond, sink.Sender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	identicalPayload := []byte(`{"text":"same"}`)
	if err := r.ObserveLive(ctx, "alarm-a", mapper.Alarm{Name: "alarm-a"}, identicalPayload); err != nil {
		t.Fatal(err)
	}
	if err := r.ObserveMirror(ctx, "alarm-a", identicalPayload); err != nil {
		t.Fatal(err)
	}
	// alarm-b only in snapshot: cleared while offline.
	if err := r.ObserveMirror(ctx, "alarm-b", []byte(`{"text":"old"}`)); err != nil {
		t.Fatal(err)
	}
	// alarm-c only live, never mirrored: new alarm, forward.
	if err := r.ObserveLive(ctx, "alarm-c", mapper.Alarm{Name: "alarm-c"}, []byte(`{"text":"new"}`)); err != nil {
		t.Fatal(err)
	}

	outcomes := map[string]Outcome{}
	for i := 0; i < 3; i++ {
		select {
		case o := <-sink.Recv():
			outcomes[o.ID] = o
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timed out waiting for outcome %d, got so far: %+v", i, outcomes)
		}
	}

	if outcomes["alarm-a"].Kind != OutcomeSuppress {
		t.Fatalf("alarm-a: got %v, want suppress", outcomes["alarm-a"].Kind)
	}
	if outcomes["alarm-b"].Kind != OutcomeClear {
		t.Fatalf("alarm-b: got %v, want clear", outcomes["alarm-b"].Kind)
	}
	if outcomes["alarm-c"].Kind != OutcomeForward {
		t.Fatalf("alarm-c: got %v, want forward", outcomes["alarm-c"].Kind)
	}
}

func TestReconcilerPostWindowForwardsImmediately(t *testing.T) {
	sink := actor.NewMailbox[Outcome](16)
	r := NewReconciler(nil, 10*time.Millisecond, sink.Sender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	time.Sleep(50 * time.Millisecond) // let the window expire with nothing pending

	if err := r.ObserveLive(ctx, "alarm-d", mapper.Alarm{Name: "alarm-d"}, []byte(`{"text":"fresh"}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case o := <-sink.Recv():
		if o.ID != "alarm-d" || o.Kind != OutcomeForward {
			t.Fatalf("got %+v", o)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for post-window forward")
	}
}
