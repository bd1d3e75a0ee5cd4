package operation

import (
	"context"
	"testing"
	"time"
)

type fakeLogProvider struct {
	content []byte
	err     error
}

func (p *fakeLogProvider) FetchLog(ctx context.Context, r LogRange) ([]byte, error) {
	return p.content, p.err
}

func TestRunLogUploadFetchesAndUploads(t *testing.T) {
	m := newConfigMachine(t, LogUploadKind, "log-1")
	provider := &fakeLogProvider{content: []byte("log lines")}
	uploader := &fakeUploader{}

	err := RunLogUpload(context.Background(), m, provider, uploader, LogRange{LogType: "software-management", Lines: 100}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if m.Record().Status != StatusSuccessful {
		t.Fatalf("got status %v", m.Record().Status)
	}
	if uploader.uploadedType != "software-management" || string(uploader.uploadedData) != "log lines" {
		t.Fatalf("uploader got %q %q", uploader.uploadedType, uploader.uploadedData)
	}
}

func TestRunLogUploadFailsWhenFetchErrors(t *testing.T) {
	m := newConfigMachine(t, LogUploadKind, "log-2")
	provider := &fakeLogProvider{err: errBoom}
	uploader := &fakeUploader{}

	err := RunLogUpload(context.Background(), m, provider, uploader, LogRange{LogType: "mosquitto"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if m.Record().Status != StatusFailed {
		t.Fatalf("got status %v", m.Record().Status)
	}
}
