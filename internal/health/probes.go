package health

import (
	"context"

	"github.com/thin-edge/tedge-core/internal/mqttactor"
)

// MQTTProbe reports the local broker reachable once transport has an
// active connection. AwaitConnection returns immediately if the
// transport is already connected, so repeated polling is cheap.
func MQTTProbe(transport *mqttactor.Transport) ProbeFunc {
	return func(ctx context.Context) error {
		return transport.AwaitConnection(ctx)
	}
}

// CloudTokenSource is the subset of httpproxy.TokenBroker a cloud probe
// needs; requesting a bearer token round-trips through the broker's
// MQTT bridge and back, exercising both the broker connection and the
// cloud side of the JWT handshake in a single check.
type CloudTokenSource interface {
	RequestToken(ctx context.Context) (string, error)
}

// CloudProbe reports the configured cloud reachable when a bearer token
// can be obtained. httpproxy.TokenBroker satisfies CloudTokenSource.
func CloudProbe(tokens CloudTokenSource) ProbeFunc {
	return func(ctx context.Context) error {
		_, err := tokens.RequestToken(ctx)
		return err
	}
}
