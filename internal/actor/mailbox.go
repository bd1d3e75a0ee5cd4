// Package actor provides the message-passing concurrency substrate
// shared by every component of the core: typed mailboxes, cloneable
// senders, request/response server actors, and a runtime supervisor
// that wires actors together and drains them on shutdown.
//
// Actors never share memory. A builder wires senders and receivers for
// every actor before the runtime starts; once running, the topology is
// fixed. Ordering is guaranteed only within a single sender: messages
// sent on the same Sender arrive at the target mailbox in send order.
package actor

import "context"

// Mailbox is a bounded FIFO receiver for messages of type M. Capacity
// is fixed at construction. Back-pressure is the only overflow policy:
// a full mailbox suspends the sender until a slot frees up.
type Mailbox[M any] struct {
	ch chan M
}

// NewMailbox creates a mailbox with the given capacity. A capacity of
// zero is legal and yields a fully synchronous rendezvous channel.
func NewMailbox[M any](capacity int) *Mailbox[M] {
	if capacity < 0 {
		capacity = 0
	}
	return &Mailbox[M]{ch: make(chan M, capacity)}
}

// Sender returns a cloneable handle peers use to send into this
// mailbox. The handle does not expose the receive side.
func (b *Mailbox[M]) Sender() Sender[M] {
	return Sender[M]{send: func(ctx context.Context, m M) error {
		select {
		case b.ch <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, try: func(m M) bool {
		select {
		case b.ch <- m:
			return true
		default:
			return false
		}
	}}
}

// Recv returns the channel the owning actor ranges or selects over.
// Only the actor that owns the mailbox should call this.
func (b *Mailbox[M]) Recv() <-chan M {
	return b.ch
}

// Close closes the mailbox. Subsequent sends panic, per Go channel
// semantics; callers must ensure no sender is active after Close —
// the runtime supervisor only closes a mailbox after every producer
// has observed the shutdown token and stopped sending.
func (b *Mailbox[M]) Close() {
	close(b.ch)
}

// Sender is a cheaply cloneable handle that accepts values of type M.
// The zero value is not usable; obtain one from Mailbox.Sender or
// Adapt.
type Sender[M any] struct {
	send func(context.Context, M) error
	try  func(M) bool
}

// Send delivers msg to the mailbox, suspending on back-pressure until
// a slot is free or ctx is cancelled. It returns ctx.Err() on
// cancellation — a cancelled send never silently succeeds and never
// silently drops a message without signalling the caller.
func (s Sender[M]) Send(ctx context.Context, msg M) error {
	return s.send(ctx, msg)
}

// TrySend attempts a non-blocking delivery. It reports whether the
// message was accepted.
func (s Sender[M]) TrySend(msg M) bool {
	return s.try(msg)
}

// Adapt wraps a Sender[M] into a Sender[N] using an injection function
// from N to M, so fan-in from several producer types composes without
// the mailbox owner needing to know every producer's message type —
// e.g. the entity registry accepts both registration events and twin
// upserts through one inbound channel, each adapted from its source
// actor's own message type. No goroutine is spawned: the injection
// runs inline on the caller's Send, keeping the hot path
// allocation-free beyond the closure itself.
func Adapt[N, M any](s Sender[M], inject func(N) M) Sender[N] {
	return Sender[N]{
		send: func(ctx context.Context, n N) error { return s.send(ctx, inject(n)) },
		try:  func(n N) bool { return s.try(inject(n)) },
	}
}
