package operation

import (
	"context"
	"io/fs"
	"time"

	"github.com/thin-edge/tedge-core/internal/store"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// ConfigDownloadKind and ConfigUploadKind name the configuration
// operation kinds (§4.5).
const (
	ConfigDownloadKind = "config-download"
	ConfigUploadKind   = "config-upload"
)

// ConfigEntry is one type registered in the configuration plugin's
// type list, giving the target path and file permissions for that
// type.
type ConfigEntry struct {
	Type string
	Path string
	Mode fs.FileMode
}

// ConfigRegistry resolves a configuration type name to its registered
// entry.
type ConfigRegistry interface {
	Lookup(configType string) (ConfigEntry, bool)
}

// Downloader fetches the content at url via the HTTP proxy.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Notifier publishes the configuration-change notification.
type Notifier interface {
	NotifyConfigChange(ctx context.Context, configType, path string) error
}

// RunConfigDownload fetches url, writes it atomically to the path
// registered for configType with that entry's permissions, and
// publishes tedge/configuration_change/<type> (§4.5). configType not
// found in registry fails the operation with
// InvalidRequestedConfigType.
func RunConfigDownload(ctx context.Context, m *Machine, registry ConfigRegistry, downloader Downloader, notifier Notifier, configType, url string, now time.Time) error {
	if err := m.Enter(ctx, now); err != nil {
		return err
	}

	entry, ok := registry.Lookup(configType)
	if !ok {
		return m.Fail(ctx, now, (&tedgeerr.InvalidRequestedConfigType{Type: configType}).Error())
	}

	data, err := downloader.Download(ctx, url)
	if err != nil {
		return m.Fail(ctx, now, err.Error())
	}

	mode := entry.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := store.WriteFileAtomic(entry.Path, data, mode); err != nil {
		return m.Fail(ctx, now, err.Error())
	}

	if notifier != nil {
		if err := notifier.NotifyConfigChange(ctx, configType, entry.Path); err != nil {
			return m.Fail(ctx, now, err.Error())
		}
	}

	return m.Succeed(ctx, now)
}

// Uploader pushes content read from a registered configuration file
// to the cloud (e.g. as an event with a binary attachment via
// internal/httpproxy) and returns nothing on success.
type Uploader interface {
	Upload(ctx context.Context, configType string, content []byte) error
}

// FileReader reads the current content of a registered configuration
// file, abstracted so tests don't need a real file on disk.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// RunConfigUpload reads the file registered for configType and pushes
// it to the cloud via uploader. configType not found in registry
// fails the operation with InvalidRequestedConfigType.
func RunConfigUpload(ctx context.Context, m *Machine, registry ConfigRegistry, reader FileReader, uploader Uploader, configType string, now time.Time) error {
	if err := m.Enter(ctx, now); err != nil {
		return err
	}

	entry, ok := registry.Lookup(configType)
	if !ok {
		return m.Fail(ctx, now, (&tedgeerr.InvalidRequestedConfigType{Type: configType}).Error())
	}

	content, err := reader.ReadFile(entry.Path)
	if err != nil {
		return m.Fail(ctx, now, err.Error())
	}

	if err := uploader.Upload(ctx, configType, content); err != nil {
		return m.Fail(ctx, now, err.Error())
	}

	return m.Succeed(ctx, now)
}
