package httpproxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/mqttactor"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

const (
	jwtRequestTopic  = "c8y/s/uat"
	jwtResponseTopic = "c8y/s/dat"
)

// TokenBroker requests a bearer token over the JWT topic pair
// (§4.6): publish an empty message to c8y/s/uat, the bridge answers on
// c8y/s/dat with the raw token.
type TokenBroker struct {
	transport *mqttactor.Transport
	mailbox   *actor.Mailbox[mqttactor.Message]
	logger    *slog.Logger
}

// NewTokenBroker subscribes to the response topic on transport. Call
// once per transport; the broker owns its mailbox for the lifetime of
// the process.
func NewTokenBroker(transport *mqttactor.Transport, logger *slog.Logger) *TokenBroker {
	tb := &TokenBroker{
		transport: transport,
		mailbox:   actor.NewMailbox[mqttactor.Message](4),
		logger:    logger,
	}
	transport.Subscribe(jwtResponseTopic, tb.mailbox.Sender())
	return tb
}

// RequestToken publishes the JWT request and waits for the matching
// response, decoding its issuer to fail fast on malformed tokens.
func (tb *TokenBroker) RequestToken(ctx context.Context) (string, error) {
	if err := tb.transport.Sender().Send(ctx, mqttactor.Message{Topic: jwtRequestTopic}); err != nil {
		return "", err
	}

	select {
	case msg := <-tb.mailbox.Recv():
		token := strings.TrimSpace(string(msg.Payload))
		if _, err := TokenIssuer(token); err != nil {
			return "", err
		}
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TokenIssuer decodes a JWT's payload segment and returns its "iss"
// claim, without verifying the signature (the broker trusts the local
// bridge, not the token itself).
func TokenIssuer(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", &tedgeerr.InvalidJWTToken{Token: token, Reason: "expected three dot-separated segments"}
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		if payload, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
			return "", &tedgeerr.InvalidJWTToken{Token: token, Reason: "payload segment is not valid base64: " + err.Error()}
		}
	}

	var claims struct {
		Issuer string `json:"iss"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", &tedgeerr.InvalidJWTToken{Token: token, Reason: "payload segment is not valid JSON: " + err.Error()}
	}
	if claims.Issuer == "" {
		return "", &tedgeerr.InvalidJWTToken{Token: token, Reason: "missing iss claim"}
	}
	return claims.Issuer, nil
}
