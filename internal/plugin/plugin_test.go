package plugin

import (
	"context"
	"testing"
)

func TestEncodeDecodeFieldRoundTrips(t *testing.T) {
	cases := []string{"simple", "has\ttab", "has\nnewline", "has%percent", "has\t\n%all"}
	for _, c := range cases {
		got := decodeField(encodeField(c))
		if got != c {
			t.Fatalf("round-trip mismatch: %q -> %q -> %q", c, encodeField(c), got)
		}
	}
}

func TestParseListOutputKnownAndUnknownVersions(t *testing.T) {
	stdout := "vim\t8.2\nemacs\t\nnano\n"
	mods := parseListOutput(stdout)
	if len(mods) != 3 {
		t.Fatalf("got %d modules, want 3", len(mods))
	}
	if mods[0].Name != "vim" || mods[0].Version != "8.2" || mods[0].UnknownVersion {
		t.Fatalf("vim: %+v", mods[0])
	}
	if mods[1].Name != "emacs" || !mods[1].UnknownVersion {
		t.Fatalf("emacs: %+v", mods[1])
	}
	if mods[2].Name != "nano" || !mods[2].UnknownVersion {
		t.Fatalf("nano: %+v", mods[2])
	}
}

func TestRunMissingExecutableReturnsPluginError(t *testing.T) {
	e := NewExecutor("/nonexistent/plugin/path-should-not-exist")
	_, err := e.run(context.Background(), "list")
	if err == nil {
		t.Fatal("expected error for missing plugin executable")
	}
	if _, ok := err.(interface{ Error() string }); !ok {
		t.Fatalf("expected an error value, got %T", err)
	}
}
