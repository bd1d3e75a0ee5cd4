package paths

import (
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	r := New(map[string]string{
		"etc": "/etc/tedge",
		"var": "/var/tedge",
	})

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"etc root", "etc:tedge.toml", filepath.Join("/etc/tedge", "tedge.toml")},
		{"etc nested", "etc:mosquitto-conf/c8y-bridge.conf", filepath.Join("/etc/tedge", "mosquitto-conf", "c8y-bridge.conf")},
		{"var root", "var:restart/op-1", filepath.Join("/var/tedge", "restart", "op-1")},
		{"bare etc root", "etc:", "/etc/tedge"},
		{"bare var root", "var:", "/var/tedge"},
		{"absolute path unchanged", "/absolute/path", "/absolute/path"},
		{"relative path unchanged", "relative/path", "relative/path"},
		{"empty string unchanged", "", ""},
		{"tilde unchanged", "~/notes.md", "~/notes.md"},
		{"no match", "unknown:foo", "unknown:foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveNilReceiver(t *testing.T) {
	var r *Resolver
	got, err := r.Resolve("etc:tedge.toml")
	if err != nil {
		t.Fatalf("nil Resolve error: %v", err)
	}
	if got != "etc:tedge.toml" {
		t.Errorf("nil Resolve(%q) = %q, want unchanged", "etc:tedge.toml", got)
	}
}

func TestResolveLongerRootFirst(t *testing.T) {
	r := New(map[string]string{
		"var":     "/short",
		"varlong": "/long",
	})

	got, err := r.Resolve("varlong:doc.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("/long", "doc.md") {
		t.Errorf("expected longer root to match, got %q", got)
	}

	got, err = r.Resolve("var:doc.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("/short", "doc.md") {
		t.Errorf("expected shorter root to match, got %q", got)
	}
}

func TestNewEmptyMap(t *testing.T) {
	if r := New(nil); r != nil {
		t.Error("New(nil) should return nil")
	}
	if r := New(map[string]string{}); r != nil {
		t.Error("New(empty) should return nil")
	}
}

func TestHasRoot(t *testing.T) {
	r := New(map[string]string{"etc": "/etc/tedge"})

	tests := []struct {
		ref  string
		want bool
	}{
		{"etc:tedge.toml", true},
		{"etc:", true},
		{"/absolute", false},
		{"relative", false},
		{"", false},
		{"unknown:bar", false},
	}

	for _, tt := range tests {
		if got := r.HasRoot(tt.ref); got != tt.want {
			t.Errorf("HasRoot(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestHasRootNilReceiver(t *testing.T) {
	var r *Resolver
	if r.HasRoot("etc:tedge.toml") {
		t.Error("nil HasRoot should return false")
	}
}

func TestRoots(t *testing.T) {
	r := New(map[string]string{
		"var": "/var/tedge",
		"etc": "/etc/tedge",
		"tmp": "/tmp",
	})

	got := r.Roots()
	want := []string{"etc", "tmp", "var"}
	if len(got) != len(want) {
		t.Fatalf("Roots() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Roots()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRootsNilReceiver(t *testing.T) {
	var r *Resolver
	if got := r.Roots(); got != nil {
		t.Errorf("nil Roots() = %v, want nil", got)
	}
}

func TestExpandHome(t *testing.T) {
	r := New(map[string]string{"etc": "~/tedge"})
	if r == nil {
		t.Fatal("expected non-nil resolver")
	}

	got, err := r.Resolve("etc:tedge.toml")
	if err != nil {
		t.Fatal(err)
	}
	if got == "~/tedge/tedge.toml" {
		t.Error("expected tilde expansion in base directory, but got literal ~")
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path after tilde expansion, got %q", got)
	}
}
