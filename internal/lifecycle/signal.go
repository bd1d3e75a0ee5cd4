// Package lifecycle is the signal-driven supervisor (§4.8): an
// independent actor observes the process's interrupt, terminate, and
// hang-up signals and translates them into two lifecycle events the
// rest of the runtime reacts to, keeping the decision of "what a
// signal means" out of every other actor.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thin-edge/tedge-core/internal/actor"
)

// Event is a lifecycle transition requested by the operating system.
type Event int

const (
	// EventTerminate asks the supervisor to cancel the root context
	// and stop the process.
	EventTerminate Event = iota
	// EventReloadConfig asks the supervisor to drop the current
	// run-stack, reload configuration, and re-enter the main loop
	// without dropping long-lived state (certificates, the entity
	// registry snapshot).
	EventReloadConfig
)

func (e Event) String() string {
	switch e {
	case EventTerminate:
		return "terminate"
	case EventReloadConfig:
		return "reload-config"
	default:
		return "unknown"
	}
}

// Signals is the signal-observing actor. It forwards SIGINT/SIGTERM
// as EventTerminate and SIGHUP as EventReloadConfig onto sink, then
// (for EventTerminate) stops watching and returns.
type Signals struct {
	sink actor.Sender[Event]
	ch   chan os.Signal
}

// NewSignals registers for SIGINT, SIGTERM, and SIGHUP and returns an
// actor that forwards them onto sink.
func NewSignals(sink actor.Sender[Event]) *Signals {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	return &Signals{sink: sink, ch: ch}
}

// Name identifies this actor for the runtime supervisor.
func (s *Signals) Name() string { return "signal-actor" }

// Run watches for signals until one resolves to EventTerminate or ctx
// is cancelled.
func (s *Signals) Run(ctx context.Context) error {
	defer signal.Stop(s.ch)
	for {
		select {
		case sig := <-s.ch:
			event := EventTerminate
			if sig == syscall.SIGHUP {
				event = EventReloadConfig
			}
			if err := s.sink.Send(ctx, event); err != nil {
				return err
			}
			if event == EventTerminate {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
