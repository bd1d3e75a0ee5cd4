package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/mqttactor"
)

func TestMQTTProbeFailsWhileTransportUnconnected(t *testing.T) {
	transport := mqttactor.New(mqttactor.Config{BrokerURL: "mqtt://127.0.0.1:1"}, nil)
	probe := MQTTProbe(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := probe(ctx); err == nil {
		t.Fatal("expected error on an unconnected transport")
	}
}

type fakeTokenSource struct {
	token string
	err   error
}

func (f *fakeTokenSource) RequestToken(ctx context.Context) (string, error) {
	return f.token, f.err
}

func TestCloudProbeSucceedsWhenTokenIssued(t *testing.T) {
	probe := CloudProbe(&fakeTokenSource{token: "abc.def.ghi"})
	if err := probe(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestCloudProbeFailsWhenTokenRequestErrors(t *testing.T) {
	probe := CloudProbe(&fakeTokenSource{err: errors.New("bridge not connected")})
	if err := probe(context.Background()); err == nil {
		t.Fatal("expected error to propagate from token source")
	}
}
