package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/mqttactor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTranslator struct {
	body []byte
	err  error
}

func (f fakeTranslator) Translate(m Measurement) ([]byte, error) { return f.body, f.err }

func newTestForwardingConverter(translator Translator, outTopic string) (*ForwardingConverter, *actor.Mailbox[mqttactor.Message]) {
	out := actor.NewMailbox[mqttactor.Message](8)
	fc := &ForwardingConverter{
		logger:     discardLogger(),
		inTopic:    "tedge/measurements",
		outTopic:   outTopic,
		maxBytes:   DefaultJSONThreshold,
		translator: translator,
		publish:    out.Sender(),
		inbound:    actor.NewMailbox[mqttactor.Message](8),
		name:       "test-forwarder",
	}
	return fc, out
}

func TestForwardingConverterPublishesTranslatedBody(t *testing.T) {
	fc, out := newTestForwardingConverter(fakeTranslator{body: []byte(`{"temperature":1}`)}, "az/messages/events/")
	ctx := context.Background()

	fc.handle(ctx, mqttactor.Message{Topic: "tedge/measurements", Payload: []byte(`{"temperature":1}`)})

	select {
	case got := <-out.Recv():
		if got.Topic != "az/messages/events/" {
			t.Fatalf("topic = %q", got.Topic)
		}
		var body map[string]any
		if err := json.Unmarshal(got.Payload, &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded publish")
	}
}

func TestForwardingConverterReportsMalformedPayloadOnErrorsTopic(t *testing.T) {
	fc, out := newTestForwardingConverter(fakeTranslator{}, "az/messages/events/")
	ctx := context.Background()

	fc.handle(ctx, mqttactor.Message{Topic: "tedge/measurements", Payload: []byte("not json")})

	select {
	case got := <-out.Recv():
		if got.Topic != ErrorsTopic {
			t.Fatalf("topic = %q, want %q", got.Topic, ErrorsTopic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error publish")
	}
}

func TestForwardingConverterReportsTranslateFailure(t *testing.T) {
	fc, out := newTestForwardingConverter(fakeTranslator{err: errors.New("boom")}, "az/messages/events/")
	ctx := context.Background()

	fc.handle(ctx, mqttactor.Message{Topic: "tedge/measurements", Payload: []byte(`{"temperature":1}`)})

	select {
	case got := <-out.Recv():
		if got.Topic != ErrorsTopic {
			t.Fatalf("topic = %q, want %q", got.Topic, ErrorsTopic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error publish")
	}
}
