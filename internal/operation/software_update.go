package operation

import (
	"context"
	"time"

	"github.com/thin-edge/tedge-core/internal/plugin"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// SoftwareUpdateKind names the software update operation kind.
const SoftwareUpdateKind = "software-update"

// ModuleChange is one requested install/remove, grouped by plugin
// type in the request (§4.5).
type ModuleChange struct {
	Action   plugin.Action
	Name     string
	Version  string
	FilePath string
	Type     string // plugin type this module declares, "" if undeclared
}

// PluginRunner is the subset of *plugin.Executor the software update
// machine needs, expressed as an interface so tests can substitute a
// fake without spawning a subprocess.
type PluginRunner interface {
	UpdateList(ctx context.Context, records []plugin.UpdateRecord) error
	List(ctx context.Context) ([]plugin.ModuleVersion, error)
}

// PluginSet resolves a module's declared type to the runner that
// handles it, with an optional default for modules with no declared
// type.
type PluginSet struct {
	ByType  map[string]PluginRunner
	Default PluginRunner // used when a module's Type is ""; may be nil
}

func (s PluginSet) resolve(moduleType string) (PluginRunner, error) {
	if moduleType == "" {
		if s.Default == nil {
			return nil, &tedgeerr.WrongModuleType{Expected: "a configured default plugin", Actual: "none configured"}
		}
		return s.Default, nil
	}
	r, ok := s.ByType[moduleType]
	if !ok {
		return nil, &tedgeerr.WrongModuleType{Expected: "one of the configured plugin types", Actual: moduleType}
	}
	return r, nil
}

// RunSoftwareUpdate drives m through the software update flow: group
// changes by plugin, stream each group's update-list, then call list
// on every involved plugin to report final state. A module whose
// declared type matches no configured plugin fails the whole
// operation (§4.5).
func RunSoftwareUpdate(ctx context.Context, m *Machine, plugins PluginSet, changes []ModuleChange, now time.Time) error {
	if err := m.Enter(ctx, now); err != nil {
		return err
	}

	grouped := make(map[string][]ModuleChange)
	order := make([]string, 0)
	for _, c := range changes {
		if _, ok := grouped[c.Type]; !ok {
			order = append(order, c.Type)
		}
		grouped[c.Type] = append(grouped[c.Type], c)
	}

	involved := make(map[string]PluginRunner)
	for _, moduleType := range order {
		runner, err := plugins.resolve(moduleType)
		if err != nil {
			return m.Fail(ctx, now, err.Error())
		}
		involved[moduleType] = runner

		records := make([]plugin.UpdateRecord, 0, len(grouped[moduleType]))
		for _, c := range grouped[moduleType] {
			records = append(records, plugin.UpdateRecord{
				Action: c.Action, Name: c.Name, Version: c.Version, FilePath: c.FilePath,
			})
		}
		if err := runner.UpdateList(ctx, records); err != nil {
			return m.Fail(ctx, now, err.Error())
		}
	}

	for _, runner := range involved {
		if _, err := runner.List(ctx); err != nil {
			return m.Fail(ctx, now, err.Error())
		}
	}

	return m.Succeed(ctx, now)
}
