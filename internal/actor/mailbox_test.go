package actor

import (
	"context"
	"testing"
	"time"
)

func TestMailboxFIFOOrdering(t *testing.T) {
	mb := NewMailbox[int](4)
	sender := mb.Sender()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := sender.Send(ctx, i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	mb.Close()

	got := make([]int, 0, 4)
	for v := range mb.Recv() {
		got = append(got, v)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order: got %v", got)
		}
	}
}

func TestSenderSendRespectsCancellation(t *testing.T) {
	mb := NewMailbox[int](0)
	sender := mb.Sender()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, 1); err == nil {
		t.Fatal("expected error on cancelled context send to full mailbox")
	}
}

func TestTrySendDoesNotBlock(t *testing.T) {
	mb := NewMailbox[int](1)
	sender := mb.Sender()

	if !sender.TrySend(1) {
		t.Fatal("expected first TrySend to succeed")
	}
	if sender.TrySend(2) {
		t.Fatal("expected second TrySend on full mailbox to fail")
	}
}

func TestAdaptInjectsMessages(t *testing.T) {
	mb := NewMailbox[string](2)
	inner := mb.Sender()

	adapted := Adapt[int](inner, func(n int) string {
		if n == 1 {
			return "one"
		}
		return "other"
	})

	ctx := context.Background()
	if err := adapted.Send(ctx, 1); err != nil {
		t.Fatal(err)
	}
	mb.Close()

	got := <-mb.Recv()
	if got != "one" {
		t.Fatalf("got %q, want %q", got, "one")
	}
}

func TestSendBlocksUntilSlotFree(t *testing.T) {
	mb := NewMailbox[int](1)
	sender := mb.Sender()
	ctx := context.Background()

	if err := sender.Send(ctx, 1); err != nil {
		t.Fatal(err)
	}

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- sender.Send(ctx, 2)
	}()

	select {
	case <-sendDone:
		t.Fatal("second send completed before a slot freed")
	case <-time.After(50 * time.Millisecond):
	}

	<-mb.Recv()

	select {
	case err := <-sendDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("second send never completed after a slot freed")
	}
}
