package paths

import "path/filepath"

// Layout is the fixed set of filesystem roots named in the Filesystem
// layout section: configuration under EtcDir, journaled operation
// state and bridge config fragments under VarDir/EtcDir, a restart
// sentinel under TmpDir, and the self-update result file under RunDir.
type Layout struct {
	EtcDir string // default /etc/tedge
	VarDir string // default /var/tedge
	TmpDir string // default /tmp
	RunDir string // default /var/run
}

// DefaultLayout returns the standard layout with EtcDir set to etcDir,
// or /etc/tedge when etcDir is empty. It reads no environment
// variable; callers pass internal/config.ConfigDir() to honour
// TEDGE_CONFIG_DIR.
func DefaultLayout(etcDir string) Layout {
	if etcDir == "" {
		etcDir = "/etc/tedge"
	}
	return Layout{
		EtcDir: etcDir,
		VarDir: "/var/tedge",
		TmpDir: "/tmp",
		RunDir: "/var/run",
	}
}

// resolver builds the underlying named-root Resolver for this layout.
func (l Layout) resolver() *Resolver {
	return New(map[string]string{
		"etc": l.EtcDir,
		"var": l.VarDir,
		"tmp": l.TmpDir,
		"run": l.RunDir,
	})
}

// BridgeConfDir is where per-cloud bridge fragments live.
func (l Layout) BridgeConfDir() string {
	return filepath.Join(l.EtcDir, "mosquitto-conf")
}

// BridgeConfPath is the rendered bridge fragment for the named cloud
// (e.g. "c8y" -> .../mosquitto-conf/c8y-bridge.conf).
func (l Layout) BridgeConfPath(cloud string) string {
	return filepath.Join(l.BridgeConfDir(), cloud+"-bridge.conf")
}

// OperationDir is the journal directory for one operation: kind and
// operation id compose the path `/var/tedge/<kind>/<op-id>`.
func (l Layout) OperationDir(kind, opID string) string {
	return filepath.Join(l.VarDir, kind, opID)
}

// RestartSentinel is the marker file a pending restart operation
// writes before invoking the reboot command, and checks for on the
// next startup to detect that a reboot actually happened.
func (l Layout) RestartSentinel(kind string) string {
	return filepath.Join(l.TmpDir, kind+"-restart-marker")
}

// SelfUpdateResultPath is where the self-update operation records its
// outcome for the next process generation to pick up (the information
// a restarted binary needs to know it was mid self-update).
func (l Layout) SelfUpdateResultPath() string {
	return filepath.Join(l.RunDir, "tedge_update", "selfupdate-result")
}

// Resolve expands a "root:relative/path" reference (e.g.
// "var:restart/op-42") against this layout's named roots.
func (l Layout) Resolve(ref string) (string, error) {
	return l.resolver().Resolve(ref)
}
