// Package topic parses and renders the canonical te/... topic grammar
// (§3, §6) and the legacy tedge/... topics it coexists with. Parsing
// is total: every conforming string yields exactly one ID, and every
// non-conforming string yields a *tedgeerr.TopicError naming the
// offending segment, as required by the spec's round-trip law
// parse(render(id)) == id.
package topic

import (
	"strings"

	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// Channel identifies the kind of canonical message carried on a topic.
type Channel string

const (
	ChannelMeasurement Channel = "m"
	ChannelEvent       Channel = "e"
	ChannelAlarm       Channel = "a"
	ChannelTwin        Channel = "twin"
	ChannelCommand     Channel = "cmd"
	ChannelHealth      Channel = "status"
)

// ID is the parsed form of a canonical topic string matching
// te/<class>/<device>/<sub1>/<sub2>/<channel>/<channel-tail>. Each
// position is a non-empty token or empty (represented as "").
type ID struct {
	Class   string // usually "device"
	Device  string
	Sub1    string
	Sub2    string
	Channel Channel
	// Tail holds every segment after Channel verbatim, preserving
	// segment count and empty segments exactly so Render round-trips.
	// Most channels carry one tail segment (the measurement/event/
	// alarm type or twin fragment name); cmd topics carry two
	// (kind, then operation-id).
	Tail []string
}

const rootPrefix = "te"

// Parse converts a topic string into an ID. The parse is total over
// conforming strings: the "te" root followed by class, device, sub1,
// sub2, channel, and zero or more tail segments. A non-conforming
// string (wrong root, too few segments) yields a *tedgeerr.TopicError
// naming the offending segment index.
func Parse(s string) (ID, error) {
	segs := strings.Split(s, "/")
	if len(segs) < 1 || segs[0] != rootPrefix {
		return ID{}, &tedgeerr.TopicError{Topic: s, Segment: 0}
	}
	if len(segs) < 6 {
		return ID{}, &tedgeerr.TopicError{Topic: s, Segment: len(segs) - 1}
	}

	id := ID{
		Class:   segs[1],
		Device:  segs[2],
		Sub1:    segs[3],
		Sub2:    segs[4],
		Channel: Channel(segs[5]),
	}
	if len(segs) > 6 {
		id.Tail = append([]string(nil), segs[6:]...)
	}
	return id, nil
}

// ChannelTail returns the tail segments joined by "/", for callers
// that only care about the logical name (measurement type, alarm
// name, twin fragment, command kind+op-id) and not exact segment
// boundaries.
func (id ID) ChannelTail() string {
	return strings.Join(id.Tail, "/")
}

// Render produces the canonical topic string for id. Render(Parse(s))
// reproduces s for every string Parse accepted, and Parse(Render(id))
// reproduces id for every ID produced by Parse — the round-trip law
// required by §8.
func (id ID) Render() string {
	segs := []string{rootPrefix, id.Class, id.Device, id.Sub1, id.Sub2, string(id.Channel)}
	segs = append(segs, id.Tail...)
	return strings.Join(segs, "/")
}

// IsMainDevice reports whether id addresses the root device (no child
// path segments set).
func (id ID) IsMainDevice() bool {
	return id.Sub1 == "" && id.Sub2 == ""
}

// ExternalIDSeed returns the device token used as the default
// external id before any registration payload overrides it.
func (id ID) ExternalIDSeed() string {
	return id.Device
}

// ParentCandidate returns the device-level ID of id: Class and Device
// are kept, Sub1, Sub2, Channel and Tail are cleared. For a service
// topic such as te/device/main/service/collectd that is the device the
// service runs on; for a device topic it is that device itself.
func (id ID) ParentCandidate() ID {
	return ID{Class: id.Class, Device: id.Device}
}

// CommandKind returns the operation kind segment of a cmd-channel
// topic (te/.../cmd/<kind>/<op-id>), or "" if Tail is empty.
func (id ID) CommandKind() string {
	if len(id.Tail) < 1 {
		return ""
	}
	return id.Tail[0]
}

// CommandOpID returns the operation-id segment of a cmd-channel topic,
// or "" if Tail has fewer than two segments.
func (id ID) CommandOpID() string {
	if len(id.Tail) < 2 {
		return ""
	}
	return id.Tail[1]
}

// LegacyMeasurementTopic is the legacy flat topic for measurements.
const LegacyMeasurementTopic = "tedge/measurements"

// LegacyAlarmTopic renders the legacy alarm ingress topic for a
// severity/name pair.
func LegacyAlarmTopic(severity, name string) string {
	return "tedge/alarms/" + severity + "/" + name
}

// ParseLegacyAlarmTopic extracts (severity, name) from a legacy alarm
// topic, or reports ok=false if s does not match tedge/alarms/<sev>/<name>.
func ParseLegacyAlarmTopic(s string) (severity, name string, ok bool) {
	const prefix = "tedge/alarms/"
	if !strings.HasPrefix(s, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(s, prefix)
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// ReconciliationMirrorTopic renders the c8y-internal alarm snapshot
// mirror topic used during the sync window (§4.4).
func ReconciliationMirrorTopic(severity, name string) string {
	return "c8y-internal/alarms/" + severity + "/" + name
}

// ConfigurationChangeTopic renders the config-update notification
// egress topic for a logical configuration type.
func ConfigurationChangeTopic(configType string) string {
	return "tedge/configuration_change/" + configType
}
