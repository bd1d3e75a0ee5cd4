// Package c8y translates between the canonical local topic schema and
// Cumulocity's SmartREST 2.0 line protocol (§4.4). Grounded on the
// teacher's JSON-marshalling discipline in internal/mqtt/publisher.go
// (build a typed payload, marshal once, publish) generalized from HA
// discovery configs to SmartREST template lines.
package c8y

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// Severity-to-template mapping for alarm raise (§4.4). Clear always
// uses template 306 regardless of severity.
var alarmRaiseTemplate = map[string]int{
	"critical": 301,
	"major":    302,
	"minor":    303,
	"warning":  304,
}

const alarmClearTemplate = 306

// Operation status templates.
const (
	TemplateOperationExecuting = 501
	TemplateOperationSuccess   = 503
	TemplateOperationFailed    = 502
)

// TemplateChildDeviceRegistration is the SmartREST template for
// registering a child device.
const TemplateChildDeviceRegistration = 101

// MeasurementLine renders a Measurement as the "ThinEdgeMeasurement"
// SmartREST numeric template line, flattening grouped series into
// "group_series" value pairs after the timestamp field.
func MeasurementLine(m mapper.Measurement, maxBytes int) (string, error) {
	ts := ""
	if m.Time != nil {
		ts = m.Time.Format(time.RFC3339)
	}
	fields := []string{"200", ts}
	for _, s := range m.Flatten() {
		name := s.Series
		if s.Group != "" {
			name = s.Group + "_" + s.Series
		}
		fields = append(fields, mapper.Sanitise(name, maxBytes), strconv.FormatFloat(s.Value, 'f', -1, 64))
	}
	line := strings.Join(fields, ",")
	if len(line) > maxBytes {
		return "", &tedgeerr.InvalidJson{Path: "<measurement>", Reason: fmt.Errorf("SmartREST line exceeds size threshold after flattening")}
	}
	return line, nil
}

// AlarmRaiseLine renders a raised/updated alarm as its severity's
// SmartREST template line: "<template>,<name>,"<text>",<time>".
func AlarmRaiseLine(a mapper.Alarm, maxBytes int) (string, error) {
	tmpl, ok := alarmRaiseTemplate[a.Severity]
	if !ok {
		return "", &tedgeerr.UnsupportedAlarmSeverity{Topic: a.Name, Severity: a.Severity}
	}
	text := mapper.Sanitise(a.Text, maxBytes)
	return fmt.Sprintf(`%d,%s,"%s",%s`, tmpl, a.Name, text, a.Time.Format(time.RFC3339)), nil
}

// AlarmClearLine renders the template-306 clear line for an alarm id.
func AlarmClearLine(name string) string {
	return fmt.Sprintf("%d,%s", alarmClearTemplate, name)
}

// ChildDeviceRegistrationLine renders template 101.
func ChildDeviceRegistrationLine(externalID, name, deviceType string) string {
	return fmt.Sprintf("%d,%s,%s,%s", TemplateChildDeviceRegistration, externalID, name, deviceType)
}

// OperationExecutingLine renders template 501.
func OperationExecutingLine(opKind string) string {
	return fmt.Sprintf("%d,%s", TemplateOperationExecuting, opKind)
}

// OperationSuccessLine renders template 503, with optional trailing
// parameters (e.g. a result payload path) appended verbatim.
func OperationSuccessLine(opKind string, params ...string) string {
	fields := append([]string{strconv.Itoa(TemplateOperationSuccess), opKind}, params...)
	return strings.Join(fields, ",")
}

// OperationFailedLine renders template 502 with a sanitised reason.
func OperationFailedLine(opKind, reason string, maxBytes int) string {
	return fmt.Sprintf("%d,%s,\"%s\"", TemplateOperationFailed, opKind, mapper.Sanitise(reason, maxBytes))
}

// EventEnvelope is the JSON body posted to event/events/create via the
// HTTP proxy for events with no binary attachment (§4.4, §4.6).
type EventEnvelope struct {
	Type string         `json:"type"`
	Text string         `json:"text"`
	Time string         `json:"time"`
	Data map[string]any `json:"c8y_Data,omitempty"`
}

// ToEventEnvelope converts a canonical Event into the Cumulocity event
// creation body.
func ToEventEnvelope(e mapper.Event) EventEnvelope {
	return EventEnvelope{
		Type: e.Type,
		Text: e.Text,
		Time: e.Time.Format(time.RFC3339),
		Data: e.Data,
	}
}
