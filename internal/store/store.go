// Package store is the persistent, restart-safe journal of operation
// records (§3, §4.7): one JSON file per operation under
// <baseDir>/<kind>/<op-id>, written atomically (temp sibling, fsync,
// rename, fsync parent directory) so a crash between writes never
// leaves a record half-written. The JSON files are the source of
// truth; internal/opstate layers a SQLite lookup index on top for
// fast listing without directory walks.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// Journal manages operation records rooted at a base directory.
type Journal struct {
	baseDir string
}

// New creates a Journal rooted at baseDir. The directory is not
// created until the first write.
func New(baseDir string) *Journal {
	return &Journal{baseDir: baseDir}
}

func (j *Journal) dir(kind string) string {
	return filepath.Join(j.baseDir, kind)
}

func (j *Journal) path(kind, opID string) string {
	return filepath.Join(j.dir(kind), opID)
}

// Write atomically persists record as JSON at <baseDir>/<kind>/<opID>.
// The write is durable before Write returns: the temp file is fsynced
// before the rename and its parent directory after it.
func (j *Journal) Write(kind, opID string, record any) error {
	dir := j.dir(kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &tedgeerr.StateError{Path: dir, Reason: err}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return &tedgeerr.StateError{Path: j.path(kind, opID), Reason: err}
	}

	target := j.path(kind, opID)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: target, Reason: err}
	}

	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}

	return nil
}

// WriteFileAtomic writes data to path via the same temp-sibling +
// fsync + rename + parent-fsync discipline as Write, for callers that
// need an atomic write outside the per-operation journal layout (e.g.
// a downloaded configuration file landing at an arbitrary target
// path, §4.5 "Configuration download").
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &tedgeerr.StateError{Path: dir, Reason: err}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: tmp, Reason: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &tedgeerr.StateError{Path: path, Reason: err}
	}
	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}
	return nil
}

// Read loads the JSON record for (kind, opID) into out.
func (j *Journal) Read(kind, opID string, out any) error {
	path := j.path(kind, opID)
	data, err := os.ReadFile(path)
	if err != nil {
		return &tedgeerr.LoadingFromFileFailed{Path: path, Reason: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &tedgeerr.InvalidJson{Path: path, Reason: err}
	}
	return nil
}

// Delete removes the record for (kind, opID). No error if it does
// not exist.
func (j *Journal) Delete(kind, opID string) error {
	path := j.path(kind, opID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &tedgeerr.StateError{Path: path, Reason: err}
	}
	return nil
}

// List returns every operation id currently journaled under kind.
func (j *Journal) List(kind string) ([]string, error) {
	entries, err := os.ReadDir(j.dir(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".tmp" {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}
