package config

import "github.com/thin-edge/tedge-core/internal/operation"

// registry adapts the configured ConfigFileEntry list into
// operation.ConfigRegistry, the lookup interface the config-download
// and config-upload operation kinds depend on.
type registry map[string]operation.ConfigEntry

// Registry builds an operation.ConfigRegistry from the loaded
// config_files list. Validate has already rejected duplicate types and
// wildcard characters, so construction here cannot fail.
func (c *Config) Registry() operation.ConfigRegistry {
	r := make(registry, len(c.ConfigFiles))
	for _, e := range c.ConfigFiles {
		r[e.Type] = operation.ConfigEntry{Type: e.Type, Path: e.Path, Mode: e.Mode}
	}
	return r
}

func (r registry) Lookup(configType string) (operation.ConfigEntry, bool) {
	e, ok := r[configType]
	return e, ok
}
