package operation

import (
	"context"
	"fmt"
	"os"
	"time"
)

// RestartKind names the restart operation kind for journal/index
// namespacing.
const RestartKind = "restart"

// RestartDetector writes and inspects the restart sentinel (§4.5).
type RestartDetector struct {
	SentinelPath string
}

// NewRestartDetector creates a detector using sentinelPath as the
// marker file location.
func NewRestartDetector(sentinelPath string) *RestartDetector {
	return &RestartDetector{SentinelPath: sentinelPath}
}

// MarkPending writes the sentinel containing opID before the restart
// command is issued, so a crash or power loss mid-restart can still be
// distinguished from "the restart command was never run" on the next
// boot.
func (d *RestartDetector) MarkPending(opID string) error {
	return os.WriteFile(d.SentinelPath, []byte(opID), 0644)
}

// Reconcile inspects the sentinel against boot. If the sentinel is
// absent, there is no pending restart operation to reconcile
// (ok=false). If present, the operation completes successful when
// bootTime is after the sentinel's modification time (the restart
// actually happened since the marker was written); otherwise it
// failed: restart did not occur. The sentinel is removed either way.
func (d *RestartDetector) Reconcile(bootTime time.Time) (opID string, successful bool, ok bool, err error) {
	data, statErr := os.ReadFile(d.SentinelPath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", false, false, nil
		}
		return "", false, false, statErr
	}

	info, statErr := os.Stat(d.SentinelPath)
	if statErr != nil {
		return "", false, false, statErr
	}

	opID = string(data)
	successful = bootTime.After(info.ModTime())

	if err := os.Remove(d.SentinelPath); err != nil && !os.IsNotExist(err) {
		return opID, successful, true, err
	}
	return opID, successful, true, nil
}

// ReconcileOnStartup runs Reconcile and, if a pending restart was
// found, drives the operation to its terminal state on m.
func ReconcileOnStartup(ctx context.Context, d *RestartDetector, m *Machine, bootTime, now time.Time) error {
	opID, successful, ok, err := d.Reconcile(bootTime)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if opID != m.OpID {
		return fmt.Errorf("restart sentinel op id %q does not match machine op id %q", opID, m.OpID)
	}
	if successful {
		return m.Succeed(ctx, now)
	}
	return m.Fail(ctx, now, "restart did not occur")
}
