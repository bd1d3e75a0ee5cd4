package c8y

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/entity"
	"github.com/thin-edge/tedge-core/internal/mapper"
	"github.com/thin-edge/tedge-core/internal/mqttactor"
	"github.com/thin-edge/tedge-core/internal/topic"
)

// Legacy and reconciliation topic filters the converter subscribes
// to before the transport starts (§4.4, §6). Canonical measurement
// ingress also matches the topic package's channel grammar.
const (
	legacyAlarmFilter          = "tedge/alarms/+/+"
	mirrorAlarmFilter          = "c8y-internal/alarms/+/+"
	canonicalMeasurementFilter = "te/+/+/+/+/m/+"
	smartRESTOutTopic          = "c8y/s/us"
)

// EntityLookup is the subset of entity.Registry the converter needs to
// resolve a canonical topic id to the external id Cumulocity
// addresses, so this package does not depend on the registry's full
// actor surface.
type EntityLookup interface {
	LookupEntity(ctx context.Context, id topic.ID) entity.LookupResult
}

// Converter is the per-cloud actor described in §4.4: it subscribes to
// the local measurement and alarm topics, translates each message
// using the pure functions in this package, feeds alarms through the
// reconciliation state machine, and publishes every translation back
// onto the broker. It owns no cloud connection of its own — SmartREST
// lines and measurement-creation JSON are just more MQTT messages from
// the transport actor's point of view.
type Converter struct {
	logger *slog.Logger

	transport *mqttactor.Transport
	entities  EntityLookup
	publish   actor.Sender[mqttactor.Message]

	smartRESTThreshold int
	jsonThreshold      int

	reconciler *Reconciler

	measurements *actor.Mailbox[mqttactor.Message]
	liveAlarms   *actor.Mailbox[mqttactor.Message]
	mirrorAlarms *actor.Mailbox[mqttactor.Message]
	outcomes     *actor.Mailbox[Outcome]
}

// Config carries the converter's tunables. Zero values fall back to
// the mapper package's defaults.
type Config struct {
	SyncWindow         time.Duration
	SmartRESTThreshold int
	JSONThreshold      int
}

// NewConverter builds the converter and registers its subscriptions
// with transport. Call before the runtime starts transport's Run, per
// mqttactor.Transport's build-time subscription contract. The returned
// Converter and its Reconciler (via Converter.Reconciler) must both be
// registered with the runtime supervisor — they are separate actors
// connected by the outcomes mailbox.
func NewConverter(transport *mqttactor.Transport, entities EntityLookup, logger *slog.Logger, cfg Config) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SmartRESTThreshold <= 0 {
		cfg.SmartRESTThreshold = mapper.DefaultSmartRESTThreshold
	}
	if cfg.JSONThreshold <= 0 {
		cfg.JSONThreshold = mapper.DefaultJSONThreshold
	}

	c := &Converter{
		logger:             logger,
		transport:          transport,
		entities:           entities,
		publish:            transport.Sender(),
		smartRESTThreshold: cfg.SmartRESTThreshold,
		jsonThreshold:      cfg.JSONThreshold,
		measurements:       actor.NewMailbox[mqttactor.Message](256),
		liveAlarms:         actor.NewMailbox[mqttactor.Message](256),
		mirrorAlarms:       actor.NewMailbox[mqttactor.Message](256),
		outcomes:           actor.NewMailbox[Outcome](256),
	}
	c.reconciler = NewReconciler(logger, cfg.SyncWindow, c.outcomes.Sender())

	transport.Subscribe(topic.LegacyMeasurementTopic, c.measurements.Sender())
	transport.Subscribe(canonicalMeasurementFilter, c.measurements.Sender())
	transport.Subscribe(legacyAlarmFilter, c.liveAlarms.Sender())
	transport.Subscribe(mirrorAlarmFilter, c.mirrorAlarms.Sender())

	return c
}

// Name implements actor.Actor.
func (c *Converter) Name() string { return "c8y-converter" }

// Reconciler returns the alarm-reconciliation actor this converter
// feeds and consumes from. The caller registers it with the runtime
// alongside Converter itself.
func (c *Converter) Reconciler() *Reconciler { return c.reconciler }

// Run implements actor.Actor: it drains measurement, live-alarm,
// mirror-alarm, and reconciliation-outcome messages until ctx is
// cancelled.
func (c *Converter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-c.measurements.Recv():
			if !ok {
				return nil
			}
			c.handleMeasurement(ctx, msg)

		case msg, ok := <-c.liveAlarms.Recv():
			if !ok {
				return nil
			}
			c.handleLiveAlarm(ctx, msg)

		case msg, ok := <-c.mirrorAlarms.Recv():
			if !ok {
				return nil
			}
			c.handleMirrorAlarm(ctx, msg)

		case o, ok := <-c.outcomes.Recv():
			if !ok {
				return nil
			}
			c.handleOutcome(ctx, o)
		}
	}
}

// handleMeasurement parses, looks up the owning entity, and publishes
// the ThinEdgeMeasurement creation JSON (§8 scenario 1). Child-device
// measurements are addressed by appending the external id to the
// creation topic, following Cumulocity's child-device multiplexing
// convention for SmartREST-adjacent topics.
func (c *Converter) handleMeasurement(ctx context.Context, msg mqttactor.Message) {
	m, err := mapper.ParseMeasurement(msg.Payload, c.jsonThreshold)
	if err != nil {
		c.reportError(ctx, msg.Topic, err)
		return
	}

	out := MeasurementCreateTopic
	if msg.Topic != topic.LegacyMeasurementTopic {
		id, perr := topic.Parse(msg.Topic)
		if perr != nil {
			c.reportError(ctx, msg.Topic, perr)
			return
		}
		found := c.entities.LookupEntity(ctx, id)
		if !found.Found {
			c.logger.Warn("measurement from unregistered entity", "topic", msg.Topic)
			return
		}
		if found.Entity.Kind != entity.KindMainDevice {
			out = MeasurementCreateTopic + "/" + found.Entity.ExternalID
		}
	}

	body, err := ToMeasurementEnvelope(m).MarshalJSON()
	if err != nil {
		c.reportError(ctx, msg.Topic, err)
		return
	}

	c.publishOut(ctx, out, body, false)
}

// handleLiveAlarm parses the legacy tedge/alarms/<severity>/<name>
// topic and feeds it into the reconciler, keyed by "<severity>/<name>"
// so the eventual outcome can still recover the severity needed to
// render the mirror topic (the reconciler itself is severity-agnostic
// and only ever sees an opaque id).
func (c *Converter) handleLiveAlarm(ctx context.Context, msg mqttactor.Message) {
	severity, name, ok := topic.ParseLegacyAlarmTopic(msg.Topic)
	if !ok {
		c.logger.Warn("alarm topic did not match tedge/alarms/<severity>/<name>", "topic", msg.Topic)
		return
	}

	a := mapper.Alarm{Severity: severity, Name: name}
	if len(msg.Payload) > 0 {
		parsed, err := mapper.ParseAlarm(msg.Payload, severity, name, c.jsonThreshold)
		if err != nil {
			c.reportError(ctx, msg.Topic, err)
			return
		}
		a = parsed
	}

	id := severity + "/" + name
	if err := c.reconciler.ObserveLive(ctx, id, a, msg.Payload); err != nil {
		c.logger.Warn("failed to forward alarm to reconciler", "topic", msg.Topic, "error", err)
	}
}

// handleMirrorAlarm parses the retained c8y-internal mirror topic and
// feeds it into the reconciler's snapshot map.
func (c *Converter) handleMirrorAlarm(ctx context.Context, msg mqttactor.Message) {
	const prefix = "c8y-internal/alarms/"
	rest := strings.TrimPrefix(msg.Topic, prefix)
	if rest == msg.Topic {
		return
	}
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return
	}
	severity, name := rest[:idx], rest[idx+1:]
	id := severity + "/" + name
	if err := c.reconciler.ObserveMirror(ctx, id, msg.Payload); err != nil {
		c.logger.Warn("failed to forward mirror alarm to reconciler", "topic", msg.Topic, "error", err)
	}
}

// handleOutcome renders a reconciliation decision as the SmartREST
// alarm line on c8y/s/us plus the retained mirror update, or does
// nothing for a suppressed (already-reported) alarm.
func (c *Converter) handleOutcome(ctx context.Context, o Outcome) {
	severity, name := splitAlarmID(o.ID)

	switch o.Kind {
	case OutcomeForward:
		line, err := AlarmRaiseLine(o.Alarm, c.smartRESTThreshold)
		if err != nil {
			c.reportError(ctx, smartRESTOutTopic, err)
			return
		}
		c.publishOut(ctx, smartRESTOutTopic, []byte(line), false)
		c.publishOut(ctx, topic.ReconciliationMirrorTopic(severity, name), o.Payload, true)

	case OutcomeClear:
		line := AlarmClearLine(name)
		c.publishOut(ctx, smartRESTOutTopic, []byte(line), false)
		c.publishOut(ctx, topic.ReconciliationMirrorTopic(severity, name), nil, true)

	case OutcomeSuppress:
		// Already reported with a byte-identical payload; nothing to do.
	}
}

func splitAlarmID(id string) (severity, name string) {
	idx := strings.Index(id, "/")
	if idx < 0 {
		return "", id
	}
	return id[:idx], id[idx+1:]
}

func (c *Converter) publishOut(ctx context.Context, topicName string, payload []byte, retain bool) {
	err := c.publish.Send(ctx, mqttactor.Message{Topic: topicName, Payload: payload, Retain: retain})
	if err != nil {
		c.logger.Warn("failed to publish converted message", "topic", topicName, "error", err)
	}
}

// errorsTopic is where oversized or malformed input is reported
// instead of silently dropped (§4.4's size-threshold behaviour).
const errorsTopic = "tedge/errors"

func (c *Converter) reportError(ctx context.Context, sourceTopic string, cause error) {
	c.logger.Warn("conversion failed", "topic", sourceTopic, "error", cause)
	c.publishOut(ctx, errorsTopic, []byte(fmt.Sprintf("%s: %v", sourceTopic, cause)), false)
}
