package c8y

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/mapper"
)

// ReconcileState is the alarm reconciliation protocol's state (§4.4).
type ReconcileState int

const (
	Syncing ReconcileState = iota
	Synced
)

// DefaultSyncWindow is the bounded, non-restartable window during
// which the reconciler only populates its maps without publishing.
const DefaultSyncWindow = 3 * time.Second

// liveAlarm and mirrorAlarm are the two message kinds the reconciler
// consumes: one from the live local alarm topic, one from the
// retained c8y-internal mirror topic that records the last alarm
// state reported to the cloud.
type liveAlarm struct {
	ID      string
	Alarm   mapper.Alarm
	Payload []byte
}

type mirrorAlarm struct {
	ID      string
	Payload []byte
}

// Outcome is what the reconciler decided to do with one alarm id once
// it has enough information: forward a raise, a clear, or suppress
// (already reported with byte-identical payload).
type Outcome struct {
	ID      string
	Kind    OutcomeKind
	Alarm   mapper.Alarm // populated for Forward
	Payload []byte       // mirror payload to retain (empty clears the mirror)
}

type OutcomeKind int

const (
	OutcomeForward OutcomeKind = iota
	OutcomeClear
	OutcomeSuppress
)

// Reconciler runs the Syncing → Synced alarm reconciliation state
// machine as a dedicated actor. LiveAlarm and MirrorAlarm feed the
// pending/snapshot maps; Outcomes delivers the window-expiry decisions
// once, then every subsequent live/mirror update is resolved
// immediately in Synced state.
type Reconciler struct {
	logger     *slog.Logger
	syncWindow time.Duration

	live   *actor.Mailbox[liveAlarm]
	mirror *actor.Mailbox[mirrorAlarm]

	outcomes actor.Sender[Outcome]

	state    ReconcileState
	pending  map[string]liveAlarm
	snapshot map[string]mirrorAlarm
}

// NewReconciler creates a reconciler that publishes decisions to
// outcomes. syncWindow of zero uses DefaultSyncWindow.
func NewReconciler(logger *slog.Logger, syncWindow time.Duration, outcomes actor.Sender[Outcome]) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if syncWindow <= 0 {
		syncWindow = DefaultSyncWindow
	}
	return &Reconciler{
		logger:     logger,
		syncWindow: syncWindow,
		live:       actor.NewMailbox[liveAlarm](256),
		mirror:     actor.NewMailbox[mirrorAlarm](256),
		outcomes:   outcomes,
		state:      Syncing,
		pending:    make(map[string]liveAlarm),
		snapshot:   make(map[string]mirrorAlarm),
	}
}

// Name implements actor.Actor.
func (r *Reconciler) Name() string { return "c8y-alarm-reconciler" }

// LiveSender is the sink for messages observed on the live local alarm
// topic.
func (r *Reconciler) LiveSender() actor.Sender[liveAlarm] { return r.live.Sender() }

// MirrorSender is the sink for messages observed on the retained
// c8y-internal mirror topic.
func (r *Reconciler) MirrorSender() actor.Sender[mirrorAlarm] { return r.mirror.Sender() }

// ObserveLive reports a live alarm topic update.
func (r *Reconciler) ObserveLive(ctx context.Context, id string, a mapper.Alarm, payload []byte) error {
	return r.live.Sender().Send(ctx, liveAlarm{ID: id, Alarm: a, Payload: payload})
}

// ObserveMirror reports a mirror topic update.
func (r *Reconciler) ObserveMirror(ctx context.Context, id string, payload []byte) error {
	return r.mirror.Sender().Send(ctx, mirrorAlarm{ID: id, Payload: payload})
}

// Run implements actor.Actor: it accumulates into pending/snapshot
// during the sync window, reconciles exactly once at window expiry,
// then resolves every subsequent update immediately.
func (r *Reconciler) Run(ctx context.Context) error {
	timer := time.NewTimer(r.syncWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case la, ok := <-r.live.Recv():
			if !ok {
				return nil
			}
			if r.state == Syncing {
				r.pending[la.ID] = la
				continue
			}
			r.resolveLive(ctx, la)

		case ma, ok := <-r.mirror.Recv():
			if !ok {
				return nil
			}
			if r.state == Syncing {
				r.snapshot[ma.ID] = ma
				continue
			}
			// After Synced, mirror updates are our own writes echoing
			// back; nothing to reconcile against them.

		case <-timer.C:
			if r.state == Syncing {
				r.reconcileWindowExpiry(ctx)
			}
		}
	}
}

// reconcileWindowExpiry runs once: alarms only in snapshot are
// synthesised as clears (they cleared while offline); alarms in
// pending with a byte-identical snapshot counterpart are suppressed;
// the remainder of pending is forwarded. The window is not
// restartable — state becomes Synced regardless of outcome.
func (r *Reconciler) reconcileWindowExpiry(ctx context.Context) {
	for id, snap := range r.snapshot {
		if _, stillLive := r.pending[id]; !stillLive {
			r.emit(ctx, Outcome{ID: id, Kind: OutcomeClear})
			_ = snap
		}
	}
	for id, la := range r.pending {
		if len(la.Payload) == 0 {
			r.emit(ctx, Outcome{ID: id, Kind: OutcomeClear})
			continue
		}
		if snap, ok := r.snapshot[id]; ok && bytes.Equal(snap.Payload, la.Payload) {
			r.emit(ctx, Outcome{ID: id, Kind: OutcomeSuppress})
			continue
		}
		r.emit(ctx, Outcome{ID: id, Kind: OutcomeForward, Alarm: la.Alarm, Payload: la.Payload})
	}
	r.state = Synced
	r.pending = nil
	r.snapshot = nil
	r.logger.Info("alarm reconciliation window closed, entering synced state")
}

// resolveLive handles a post-window live alarm update: every live
// alarm in Synced state produces both a cloud-bound forward and a
// retained mirror update.
func (r *Reconciler) resolveLive(ctx context.Context, la liveAlarm) {
	if len(la.Payload) == 0 {
		r.emit(ctx, Outcome{ID: la.ID, Kind: OutcomeClear})
		return
	}
	r.emit(ctx, Outcome{ID: la.ID, Kind: OutcomeForward, Alarm: la.Alarm, Payload: la.Payload})
}

func (r *Reconciler) emit(ctx context.Context, o Outcome) {
	if err := r.outcomes.Send(ctx, o); err != nil {
		r.logger.Warn("failed to emit alarm reconciliation outcome", "id", o.ID, "error", err)
	}
}
