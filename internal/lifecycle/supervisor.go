package lifecycle

import (
	"context"
	"log/slog"

	"github.com/thin-edge/tedge-core/internal/actor"
)

// StackBuilder builds one generation's run-stack: it registers every
// actor for the current configuration onto a fresh *actor.Runtime.
// genCtx is cancelled when that generation should stop, either for a
// config reload or final shutdown.
type StackBuilder func(genCtx context.Context) (*actor.Runtime, error)

// Supervisor owns the process lifetime across config reloads. Each
// generation gets its own run-stack built by StackBuilder; state that
// must survive a reload (certificates, the entity registry snapshot)
// is expected to live in the closure StackBuilder was constructed
// from, not inside the generation's Runtime.
type Supervisor struct {
	logger *slog.Logger
	build  StackBuilder
}

// NewSupervisor creates a Supervisor. A nil logger is replaced with
// slog.Default().
func NewSupervisor(logger *slog.Logger, build StackBuilder) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger, build: build}
}

// Run drives the signal actor and the generation loop until
// EventTerminate or ctx cancellation. It returns the error (if any)
// from the generation's StackBuilder; a reload never returns early.
func (s *Supervisor) Run(ctx context.Context) error {
	events := actor.NewMailbox[Event](1)
	signals := NewSignals(events.Sender())

	rootCtx, rootCancel := context.WithCancel(ctx)
	defer rootCancel()

	go func() {
		if err := signals.Run(rootCtx); err != nil {
			s.logger.Error("signal actor exited with error", "error", err)
		}
	}()

	for {
		genCtx, genCancel := context.WithCancel(rootCtx)
		runtime, err := s.build(genCtx)
		if err != nil {
			genCancel()
			return err
		}

		done := make(chan struct{})
		go func() {
			runtime.Run(genCtx)
			close(done)
		}()

		select {
		case event := <-events.Recv():
			switch event {
			case EventTerminate:
				s.logger.Info("terminate requested, shutting down")
				genCancel()
				<-done
				return nil
			case EventReloadConfig:
				s.logger.Info("reload requested, dropping run-stack")
				genCancel()
				<-done
				continue
			}
		case <-rootCtx.Done():
			genCancel()
			<-done
			return nil
		}
	}
}
