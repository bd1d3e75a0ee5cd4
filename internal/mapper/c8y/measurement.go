package c8y

import (
	"encoding/json"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
)

// MeasurementCreateTopic is where the JSON measurement-creation body
// is published, as an alternative to the SmartREST numeric line when
// the measurement carries grouped series that need the
// "ThinEdgeMeasurement" fragment.series.value nesting (§8 scenario 1).
const MeasurementCreateTopic = "c8y/measurement/measurements/create"

// MeasurementEnvelope is the JSON body Cumulocity's measurement
// creation endpoint expects: every series nested two levels deep as
// fragment -> series -> {value}, alongside the top-level type and
// time fields.
type MeasurementEnvelope struct {
	Type       string `json:"type"`
	Time       string `json:"time,omitempty"`
	rawGrouped map[string]map[string]float64
}

type measureLeaf struct {
	Value float64 `json:"value"`
}

// ToMeasurementEnvelope converts a canonical Measurement into the
// fragment/series/value nesting Cumulocity's measurement creation API
// expects. Ungrouped series are nested under a fragment named after
// the series itself (fragment.series.value), matching the worked
// example: {"temperature":23.0} becomes
// temperature.temperature.value == 23.0.
func ToMeasurementEnvelope(m mapper.Measurement) MeasurementEnvelope {
	env := MeasurementEnvelope{Type: "ThinEdgeMeasurement"}
	if m.Time != nil {
		env.Time = m.Time.Format(time.RFC3339)
	}
	for _, s := range m.Flatten() {
		fragment := s.Group
		if fragment == "" {
			fragment = s.Series
		}
		if env.rawGrouped == nil {
			env.rawGrouped = make(map[string]map[string]float64)
		}
		if env.rawGrouped[fragment] == nil {
			env.rawGrouped[fragment] = make(map[string]float64)
		}
		env.rawGrouped[fragment][s.Series] = s.Value
	}
	return env
}

// MarshalJSON flattens the internal grouped-float map into the
// fragment -> series -> {"value": n} shape at encode time, since Go's
// json package cannot express that extra nesting level via struct
// tags alone.
func (e MeasurementEnvelope) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(e.rawGrouped)+2)
	doc["type"] = e.Type
	if e.Time != "" {
		doc["time"] = e.Time
	}
	for fragment, series := range e.rawGrouped {
		leaves := make(map[string]measureLeaf, len(series))
		for name, v := range series {
			leaves[name] = measureLeaf{Value: v}
		}
		doc[fragment] = leaves
	}
	return json.Marshal(doc)
}
