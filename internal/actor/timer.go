package actor

import (
	"container/heap"
	"context"
	"time"
)

// TimerEvent is delivered to a requester's mailbox when one of its
// timers fires.
type TimerEvent struct {
	RequesterID string
	EventID     string
}

// timerEntry is one scheduled wake-up, ordered by Deadline in the
// heap.
type timerEntry struct {
	deadline    time.Time
	requesterID string
	eventID     string
	cancelled   bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// setRequest asks the Timer actor to arm a new deadline.
type setRequest struct {
	requesterID string
	eventID     string
	deadline    time.Time
	sink        Sender[TimerEvent]
}

// cancelRequest drops all pending timers for a requester. Per §5,
// cancellation is lazy: entries are marked cancelled and skipped on
// next pop rather than removed from the heap immediately.
type cancelRequest struct {
	requesterID string
}

// Timer is the actor that owns a priority queue of (deadline,
// requester, event) entries and fires TimerEvents into requester
// mailboxes. Setting an earlier deadline does not lose previously
// stored timers — it only changes which deadline the run loop is
// currently waiting on.
type Timer struct {
	sets    *Mailbox[setRequest]
	cancels *Mailbox[cancelRequest]
	heap    timerHeap
	sinks   map[string]Sender[TimerEvent]
}

// NewTimer creates a Timer actor with the given mailbox capacities.
func NewTimer(mailboxCapacity int) *Timer {
	return &Timer{
		sets:    NewMailbox[setRequest](mailboxCapacity),
		cancels: NewMailbox[cancelRequest](mailboxCapacity),
		sinks:   make(map[string]Sender[TimerEvent]),
	}
}

// Name implements Actor.
func (t *Timer) Name() string { return "timer" }

// Sender returns a handle for requesters to arm new deadlines.
func (t *Timer) Sender() Sender[setRequest] {
	return t.sets.Sender()
}

// CancelSender returns a handle for requesters to drop their pending
// timers, e.g. on their own shutdown.
func (t *Timer) CancelSender() Sender[cancelRequest] {
	return t.cancels.Sender()
}

// Set arms a new timer for requesterID/eventID, delivered to sink on
// fire. It suspends on mailbox back-pressure until ctx is cancelled.
func (t *Timer) Set(ctx context.Context, requesterID, eventID string, deadline time.Time, sink Sender[TimerEvent]) error {
	return t.sets.Sender().Send(ctx, setRequest{
		requesterID: requesterID,
		eventID:     eventID,
		deadline:    deadline,
		sink:        sink,
	})
}

// Cancel drops all pending timers owned by requesterID.
func (t *Timer) Cancel(ctx context.Context, requesterID string) error {
	return t.cancels.Sender().Send(ctx, cancelRequest{requesterID: requesterID})
}

// Run implements Actor. It multiplexes set/cancel requests with the
// next deadline in the heap until ctx is cancelled.
func (t *Timer) Run(ctx context.Context) error {
	heap.Init(&t.heap)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	armNext := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		for len(t.heap) > 0 && t.heap[0].cancelled {
			heap.Pop(&t.heap)
		}
		if len(t.heap) == 0 {
			return
		}
		d := time.Until(t.heap[0].deadline)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case req, ok := <-t.sets.Recv():
			if !ok {
				return nil
			}
			t.sinks[req.requesterID] = req.sink
			heap.Push(&t.heap, &timerEntry{
				deadline:    req.deadline,
				requesterID: req.requesterID,
				eventID:     req.eventID,
			})
			armNext()

		case req, ok := <-t.cancels.Recv():
			if !ok {
				return nil
			}
			for _, e := range t.heap {
				if e.requesterID == req.requesterID {
					e.cancelled = true
				}
			}
			delete(t.sinks, req.requesterID)

		case <-timer.C:
			for len(t.heap) > 0 && !t.heap[0].deadline.After(time.Now()) {
				entry := heap.Pop(&t.heap).(*timerEntry)
				if entry.cancelled {
					continue
				}
				if sink, ok := t.sinks[entry.requesterID]; ok {
					_ = sink.TrySend(TimerEvent{RequesterID: entry.requesterID, EventID: entry.eventID})
				}
			}
			armNext()
		}
	}
}
