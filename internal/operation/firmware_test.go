package operation

import (
	"context"
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/store"
)

type fakeFirmwarePublisher struct {
	sent []FirmwareRequest
}

func (f *fakeFirmwarePublisher) PublishFirmwareRequest(ctx context.Context, childID string, req FirmwareRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func newFirmwareMachine(t *testing.T, opID string) *Machine {
	t.Helper()
	j := store.New(t.TempDir())
	idx := newFakeIndex()
	emitter := &fakeEmitter{}
	return New(FirmwareKind, opID, j, idx, emitter, time.Now(), nil)
}

func TestFirmwareCorrelatorSucceedsOnTerminalResponse(t *testing.T) {
	m := newFirmwareMachine(t, "fw-1")
	pub := &fakeFirmwarePublisher{}
	timer := actor.NewTimer(4)

	c := NewFirmwareCorrelator(m, "child-1", pub, timer, time.Hour, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Now()) }()

	time.Sleep(20 * time.Millisecond)
	if err := c.Responses().Send(ctx, FirmwareResponse{OperationID: "fw-1", Status: "successful"}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("correlator did not complete")
	}

	if len(pub.sent) != 1 {
		t.Fatalf("expected one request, got %d", len(pub.sent))
	}
	if m.Record().Status != StatusSuccessful {
		t.Fatalf("got status %v", m.Record().Status)
	}
}

func TestFirmwareCorrelatorRetriesThenTimesOut(t *testing.T) {
	m := newFirmwareMachine(t, "fw-2")
	pub := &fakeFirmwarePublisher{}
	timer := actor.NewTimer(4)

	// A tiny timeout and two max retries so the test completes fast:
	// attempt 1 (initial) + 1 retry = 2 sends before giving up.
	c := NewFirmwareCorrelator(m, "child-2", pub, timer, 10*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Now()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("correlator did not time out")
	}

	if len(pub.sent) != 2 {
		t.Fatalf("expected 2 sends (initial + 1 retry), got %d", len(pub.sent))
	}
	if m.Record().Status != StatusTimedOut {
		t.Fatalf("got status %v", m.Record().Status)
	}
}

func TestFirmwareCorrelatorExecutingResetsTimeout(t *testing.T) {
	m := newFirmwareMachine(t, "fw-3")
	pub := &fakeFirmwarePublisher{}
	timer := actor.NewTimer(4)

	c := NewFirmwareCorrelator(m, "child-3", pub, timer, time.Hour, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Now()) }()

	time.Sleep(10 * time.Millisecond)
	c.Responses().Send(ctx, FirmwareResponse{OperationID: "fw-3", Status: "executing"})
	time.Sleep(10 * time.Millisecond)
	if m.Record().Status != StatusExecuting {
		t.Fatalf("expected still executing after keep-alive, got %v", m.Record().Status)
	}
	c.Responses().Send(ctx, FirmwareResponse{OperationID: "fw-3", Status: "successful"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("correlator did not complete")
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected no retries, got %d sends", len(pub.sent))
	}
}
