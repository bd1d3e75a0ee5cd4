package actor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Actor is a value with a unique name and an asynchronous run
// operation that consumes its private mailbox until the mailbox is
// closed or ctx is cancelled. Run returns nil on a clean stop; it
// returns a non-nil error only for unrecoverable conditions — the
// supervisor logs such errors and proceeds with shutdown of peers, it
// does not propagate them as a process-wide error on its own.
type Actor interface {
	Name() string
	Run(ctx context.Context) error
}

// ActorFunc adapts a plain function to the Actor interface.
type ActorFunc struct {
	name string
	run  func(context.Context) error
}

// NewActorFunc wraps run as a named Actor.
func NewActorFunc(name string, run func(context.Context) error) ActorFunc {
	return ActorFunc{name: name, run: run}
}

func (a ActorFunc) Name() string                    { return a.name }
func (a ActorFunc) Run(ctx context.Context) error   { return a.run(ctx) }

// DefaultDrainWindow bounds how long the supervisor waits for an actor to
// return after cancellation before considering it hung. The spec
// default is 2 seconds.
const DefaultDrainWindow = 2 * time.Second

// Runtime builds every actor with a shared shutdown context, runs
// them concurrently, and awaits their join. It cascades cancellation
// to every actor on shutdown and logs (rather than propagates) any
// individual actor error, per the supervisor failure model in §4.1.
type Runtime struct {
	logger      *slog.Logger
	drainWindow time.Duration
	actors      []Actor
}

// NewRuntime creates a runtime supervisor. A nil logger is replaced
// with slog.Default(). A non-positive drainWindow falls back to
// DefaultDrainWindow.
func NewRuntime(logger *slog.Logger, drainWindow time.Duration) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if drainWindow <= 0 {
		drainWindow = DefaultDrainWindow
	}
	return &Runtime{logger: logger, drainWindow: drainWindow}
}

// Register adds an actor to the runtime. Must be called before Run;
// once the runtime starts, topology is fixed.
func (r *Runtime) Register(a Actor) {
	r.actors = append(r.actors, a)
}

// Run starts every registered actor and blocks until ctx is cancelled
// and every actor has returned (or the drain window elapses, in which
// case the hung actor is abandoned and the function returns anyway —
// Go offers no portable way to force-abort a goroutine, so "abort"
// here means the supervisor stops waiting on it).
func (r *Runtime) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, a := range r.actors {
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			if err := a.Run(ctx); err != nil {
				r.logger.Error("actor exited with error", "actor", a.Name(), "error", err)
			} else {
				r.logger.Debug("actor exited cleanly", "actor", a.Name())
			}
		}(a)
	}

	<-ctx.Done()
	r.logger.Info("runtime shutting down, draining actors", "window", r.drainWindow)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("all actors drained")
	case <-time.After(r.drainWindow):
		r.logger.Warn("drain window elapsed, abandoning hung actors")
	}
}
