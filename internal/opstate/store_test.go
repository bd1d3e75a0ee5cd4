package opstate

import (
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "opstate_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStatusMissing(t *testing.T) {
	s := testStore(t)

	status, err := s.Status("software_update", "op-missing")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status != "" {
		t.Errorf("Status() = %q, want empty string for unindexed operation", status)
	}
}

func TestUpsertAndStatus(t *testing.T) {
	s := testStore(t)

	if err := s.Upsert("software_update", "op-1", "executing"); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	status, err := s.Status("software_update", "op-1")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status != "executing" {
		t.Errorf("Status() = %q, want %q", status, "executing")
	}
}

func TestUpsertOverwritesStatus(t *testing.T) {
	s := testStore(t)

	s.Upsert("restart", "op-2", "executing")
	s.Upsert("restart", "op-2", "successful")

	status, _ := s.Status("restart", "op-2")
	if status != "successful" {
		t.Errorf("Status() = %q, want %q after overwrite", status, "successful")
	}
}

func TestRemoveDropsIndexRow(t *testing.T) {
	s := testStore(t)

	s.Upsert("config_update", "op-3", "successful")
	if err := s.Remove("config_update", "op-3"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	status, _ := s.Status("config_update", "op-3")
	if status != "" {
		t.Errorf("Status() = %q, want empty after Remove", status)
	}
}

func TestListByStatusFiltersByKindAndStatus(t *testing.T) {
	s := testStore(t)

	s.Upsert("software_update", "op-a", "executing")
	s.Upsert("software_update", "op-b", "executing")
	s.Upsert("software_update", "op-c", "successful")
	s.Upsert("firmware_update", "op-d", "executing")

	ids, err := s.ListByStatus("software_update", "executing")
	if err != nil {
		t.Fatalf("ListByStatus() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "op-a" || ids[1] != "op-b" {
		t.Errorf("ListByStatus() = %v, want [op-a op-b]", ids)
	}
}

func TestAllReturnsEveryKind(t *testing.T) {
	s := testStore(t)

	s.Upsert("restart", "op-1", "executing")
	s.Upsert("software_update", "op-2", "successful")

	recs, err := s.All()
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("All() returned %d records, want 2", len(recs))
	}
}
