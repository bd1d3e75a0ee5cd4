// Package mapper holds the canonical JSON grammar, size validation,
// and string sanitisation shared by every per-cloud converter (§4.4).
// Per-cloud translation lives in the c8y, az, and aws subpackages.
package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// Default input size thresholds (§4.4). SmartREST lines are
// constrained far tighter than the generic JSON ceiling because they
// travel over the Cumulocity bulk-create line protocol.
const (
	DefaultSmartRESTThreshold = 16_000
	DefaultJSONThreshold      = 255 * 1024
)

// Measurement is the canonical parsed form of a measurement payload:
// an optional timestamp and one or two levels of numeric leaves. A
// leaf with no enclosing group is recorded under the empty group "".
type Measurement struct {
	Time   *time.Time
	Groups map[string]map[string]float64
}

// ParseMeasurement validates raw against maxBytes and decodes it into
// the canonical grammar: JSON object, optional RFC-3339 "time" field,
// and every other field either a numeric leaf (single-series) or an
// object of numeric leaves (grouped series). Any non-numeric leaf
// value is rejected.
func ParseMeasurement(raw []byte, maxBytes int) (Measurement, error) {
	if len(raw) > maxBytes {
		return Measurement{}, &tedgeerr.InvalidJson{Path: "<measurement>", Reason: fmt.Errorf("payload of %d bytes exceeds limit %d", len(raw), maxBytes)}
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Measurement{}, &tedgeerr.InvalidJson{Path: "<measurement>", Reason: err}
	}

	m := Measurement{Groups: map[string]map[string]float64{"": {}}}

	for key, val := range doc {
		if key == "time" {
			ts, ok := val.(string)
			if !ok {
				return Measurement{}, &tedgeerr.InvalidJson{Path: "time", Reason: fmt.Errorf("time field must be a string")}
			}
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return Measurement{}, &tedgeerr.InvalidJson{Path: "time", Reason: err}
			}
			m.Time = &t
			continue
		}

		switch v := val.(type) {
		case float64:
			m.Groups[""][key] = v
		case map[string]any:
			group := make(map[string]float64, len(v))
			for series, leaf := range v {
				f, ok := leaf.(float64)
				if !ok {
					return Measurement{}, &tedgeerr.InvalidJson{Path: key + "." + series, Reason: fmt.Errorf("leaf values must be numeric")}
				}
				group[series] = f
			}
			m.Groups[key] = group
		default:
			return Measurement{}, &tedgeerr.InvalidJson{Path: key, Reason: fmt.Errorf("expected a number or an object of numbers")}
		}
	}
	if len(m.Groups[""]) == 0 {
		delete(m.Groups, "")
	}
	return m, nil
}

// FlatSeries is one (group, series, value) triple flattened out of a
// Measurement for converters that need a flat iteration order.
type FlatSeries struct {
	Group  string
	Series string
	Value  float64
}

// Flatten returns every series in a deterministic order (groups then
// series names, both sorted) so repeated calls on the same
// Measurement produce byte-identical SmartREST output.
func (m Measurement) Flatten() []FlatSeries {
	groups := make([]string, 0, len(m.Groups))
	for g := range m.Groups {
		groups = append(groups, g)
	}
	sortStrings(groups)

	out := make([]FlatSeries, 0)
	for _, g := range groups {
		series := make([]string, 0, len(m.Groups[g]))
		for s := range m.Groups[g] {
			series = append(series, s)
		}
		sortStrings(series)
		for _, s := range series {
			out = append(out, FlatSeries{Group: g, Series: s, Value: m.Groups[g][s]})
		}
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Sanitise applies the SmartREST string rule (§4.4): carriage-return,
// line-feed, and tab are kept; every other control character is
// dropped; double quotes are doubled so the field survives the CSV-ish
// line format; the result is truncated to maxBytes on a UTF-8
// character boundary.
func Sanitise(s string, maxBytes int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			continue
		case r == '"':
			b.WriteString(`""`)
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) <= maxBytes {
		return out
	}
	return truncateUTF8(out, maxBytes)
}

func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	b := []byte(s)
	if len(b) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut])
}

// Alarm is the canonical parsed form of an alarm message.
type Alarm struct {
	Severity string
	Name     string
	Text     string
	Time     time.Time
	Payload  []byte // raw bytes, for the reconciliation protocol's byte-identical comparison
}

// Event is the canonical parsed form of an event message.
type Event struct {
	Type string
	Text string
	Time time.Time
	Data map[string]any
}

// ParseAlarm decodes an alarm payload against the canonical grammar
// (§6): {"severity"?: ..., "text"?: string, "time"?: RFC-3339,
// ...extras}. severity and name come from the topic the payload was
// observed on, since the legacy ingress topic encodes them there
// rather than in the body; an explicit "severity" field in the
// payload, if present, overrides the topic-derived one. A missing
// "time" field leaves Time at the zero time; AlarmRaiseLine renders
// that zero time unchanged.
func ParseAlarm(raw []byte, severity, name string, maxBytes int) (Alarm, error) {
	if len(raw) > maxBytes {
		return Alarm{}, &tedgeerr.InvalidJson{Path: "<alarm>", Reason: fmt.Errorf("payload of %d bytes exceeds limit %d", len(raw), maxBytes)}
	}

	var doc struct {
		Severity string `json:"severity"`
		Text     string `json:"text"`
		Time     string `json:"time"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Alarm{}, &tedgeerr.InvalidJson{Path: "<alarm>", Reason: err}
	}

	a := Alarm{Severity: severity, Name: name, Text: doc.Text, Payload: raw}
	if doc.Severity != "" {
		a.Severity = doc.Severity
	}
	if doc.Time != "" {
		t, err := time.Parse(time.RFC3339, doc.Time)
		if err != nil {
			return Alarm{}, &tedgeerr.InvalidJson{Path: "time", Reason: err}
		}
		a.Time = t
	}
	return a, nil
}
