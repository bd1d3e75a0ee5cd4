package operation

import (
	"context"
	"time"
)

// SelfUpdateKind names the self-update operation kind.
const SelfUpdateKind = "self-update"

// CloudConnection is one configured cloud bridge the self-update
// operation disconnects before applying an update and reconnects
// afterward.
type CloudConnection interface {
	Name() string
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

// Updater applies the actual binary/package update once every cloud
// connection has been asked to disconnect.
type Updater interface {
	Apply(ctx context.Context) error
}

// SelfUpdateResult reports whether any configured cloud failed to
// disconnect cleanly. The runtime's process exit code must be 2 when
// this is true (§ REDESIGN FLAGS / Open Questions), regardless of
// whether the update itself ultimately succeeded.
type SelfUpdateResult struct {
	AnyDisconnectFailed bool
	FailedClouds        []string
}

// RunSelfUpdate disconnects every configured cloud, applies the
// update, then reconnects every cloud regardless of disconnect
// outcome — a cloud that failed to disconnect still gets a reconnect
// attempt, since leaving it in a disconnected state would strand the
// device. The caller inspects the returned SelfUpdateResult to decide
// the process exit code. The Machine ends failed when the update
// fails to apply or when any cloud failed to disconnect, and
// successful otherwise.
func RunSelfUpdate(ctx context.Context, m *Machine, clouds []CloudConnection, updater Updater, now time.Time) (SelfUpdateResult, error) {
	if err := m.Enter(ctx, now); err != nil {
		return SelfUpdateResult{}, err
	}

	var result SelfUpdateResult
	for _, c := range clouds {
		if err := c.Disconnect(ctx); err != nil {
			result.AnyDisconnectFailed = true
			result.FailedClouds = append(result.FailedClouds, c.Name())
		}
	}

	var applyErr error
	if updater != nil {
		applyErr = updater.Apply(ctx)
	}

	for _, c := range clouds {
		_ = c.Reconnect(ctx)
	}

	if applyErr != nil {
		return result, m.Fail(ctx, now, applyErr.Error())
	}
	if result.AnyDisconnectFailed {
		return result, m.Fail(ctx, now, "partial disconnect during self-update")
	}
	return result, m.Succeed(ctx, now)
}
