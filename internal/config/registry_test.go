package config

import "testing"

func TestRegistryLookup(t *testing.T) {
	cfg := Default()
	cfg.ConfigFiles = []ConfigFileEntry{
		{Type: "tedge-configuration", Path: "/etc/tedge/tedge.toml", Mode: 0644},
	}
	cfg.applyDefaults()

	reg := cfg.Registry()

	entry, ok := reg.Lookup("tedge-configuration")
	if !ok {
		t.Fatal("expected tedge-configuration to be registered")
	}
	if entry.Path != "/etc/tedge/tedge.toml" || entry.Mode != 0644 {
		t.Errorf("got %+v", entry)
	}

	if _, ok := reg.Lookup("unregistered"); ok {
		t.Fatal("expected unregistered type to be absent")
	}
}
