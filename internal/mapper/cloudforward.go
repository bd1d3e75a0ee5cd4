package mapper

import (
	"context"
	"log/slog"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/mqttactor"
)

// Translator is satisfied by az.Converter and aws.Converter: both
// backends need nothing more than timestamp injection and a flat JSON
// body, unlike Cumulocity's SmartREST line protocol and alarm
// reconciliation (§4.4 — "measurements pass through after timestamp
// injection; no alarm reconciliation is performed").
type Translator interface {
	Translate(m Measurement) ([]byte, error)
}

// ForwardingConverter is the Azure/AWS shape of the per-cloud
// converter actor (§4.4): a single inbound topic, a pure Translator,
// and a single outbound topic, with no reconciliation state. Grounded
// on the upstream AzureConverter's in_topic_filter/out_topic/
// errors_topic split (tedge/measurements -> az/messages/events/,
// tedge/errors on failure).
type ForwardingConverter struct {
	logger *slog.Logger

	inTopic    string
	outTopic   string
	maxBytes   int
	translator Translator

	publish actor.Sender[mqttactor.Message]
	inbound *actor.Mailbox[mqttactor.Message]
	name    string
}

// NewForwardingConverter builds and wires a ForwardingConverter, registering
// its subscription on transport. Call before the runtime starts
// transport's Run.
func NewForwardingConverter(name string, transport *mqttactor.Transport, translator Translator, inTopic, outTopic string, maxBytes int, logger *slog.Logger) *ForwardingConverter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultJSONThreshold
	}
	fc := &ForwardingConverter{
		logger:     logger,
		inTopic:    inTopic,
		outTopic:   outTopic,
		maxBytes:   maxBytes,
		translator: translator,
		publish:    transport.Sender(),
		inbound:    actor.NewMailbox[mqttactor.Message](256),
		name:       name,
	}
	transport.Subscribe(inTopic, fc.inbound.Sender())
	return fc
}

// Name implements actor.Actor.
func (fc *ForwardingConverter) Name() string { return fc.name }

// Run implements actor.Actor.
func (fc *ForwardingConverter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-fc.inbound.Recv():
			if !ok {
				return nil
			}
			fc.handle(ctx, msg)
		}
	}
}

func (fc *ForwardingConverter) handle(ctx context.Context, msg mqttactor.Message) {
	m, err := ParseMeasurement(msg.Payload, fc.maxBytes)
	if err != nil {
		fc.reportError(ctx, msg.Topic, err)
		return
	}
	body, err := fc.translator.Translate(m)
	if err != nil {
		fc.reportError(ctx, msg.Topic, err)
		return
	}
	if err := fc.publish.Send(ctx, mqttactor.Message{Topic: fc.outTopic, Payload: body}); err != nil {
		fc.logger.Warn("failed to publish forwarded measurement", "topic", fc.outTopic, "error", err)
	}
}

// ErrorsTopic is where a forwarding converter reports malformed or
// oversized input instead of silently dropping it.
const ErrorsTopic = "tedge/errors"

func (fc *ForwardingConverter) reportError(ctx context.Context, sourceTopic string, cause error) {
	fc.logger.Warn("conversion failed", "converter", fc.name, "topic", sourceTopic, "error", cause)
	_ = fc.publish.Send(ctx, mqttactor.Message{Topic: ErrorsTopic, Payload: []byte(sourceTopic + ": " + cause.Error())})
}
