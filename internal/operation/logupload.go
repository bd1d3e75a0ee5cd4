package operation

import (
	"context"
	"time"
)

// LogUploadKind names the log upload operation kind.
const LogUploadKind = "log-upload"

// LogRange bounds the portion of a named log to collect.
type LogRange struct {
	LogType string
	Since   time.Time
	Until   time.Time
	Lines   int
}

// LogProvider fetches the requested slice of a local log.
type LogProvider interface {
	FetchLog(ctx context.Context, r LogRange) ([]byte, error)
}

// RunLogUpload fetches the requested log range and pushes it to the
// cloud through uploader (typically internal/httpproxy's event +
// binary-attachment pair).
func RunLogUpload(ctx context.Context, m *Machine, provider LogProvider, uploader Uploader, r LogRange, now time.Time) error {
	if err := m.Enter(ctx, now); err != nil {
		return err
	}

	content, err := provider.FetchLog(ctx, r)
	if err != nil {
		return m.Fail(ctx, now, err.Error())
	}

	if err := uploader.Upload(ctx, r.LogType, content); err != nil {
		return m.Fail(ctx, now, err.Error())
	}

	return m.Succeed(ctx, now)
}
