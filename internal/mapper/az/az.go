// Package az translates canonical measurements into the Azure IoT Hub
// device-to-cloud message body. Azure requires no alarm reconciliation
// protocol: the backend does not need state recovery on the mapper
// side (§4.4), so this package is a thin pass-through plus timestamp
// injection rather than a stateful converter like c8y.
package az

import (
	"encoding/json"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
)

// InTopic and OutTopic are the legacy measurement ingress and Azure
// IoT Hub egress topics this converter bridges.
const (
	InTopic  = "tedge/measurements"
	OutTopic = "az/messages/events/"
)

// InjectTimestamp controls whether a missing measurement timestamp is
// filled in with the current time before translation.
type Converter struct {
	InjectTimestamp bool
	Now             func() time.Time
}

// New returns a Converter with timestamp injection enabled, using
// time.Now as the clock.
func New() *Converter {
	return &Converter{InjectTimestamp: true, Now: time.Now}
}

// Translate converts a canonical Measurement into the flat JSON body
// Azure IoT Hub expects: every series at top level (grouped series
// flattened as "group_series"), plus a top-level "time" field.
func (c *Converter) Translate(m mapper.Measurement) ([]byte, error) {
	body := make(map[string]any)
	ts := m.Time
	if ts == nil && c.InjectTimestamp {
		now := c.Now()
		if now.IsZero() {
			now = time.Now()
		}
		ts = &now
	}
	if ts != nil {
		body["time"] = ts.Format(time.RFC3339)
	}
	for _, s := range m.Flatten() {
		name := s.Series
		if s.Group != "" {
			name = s.Group + "_" + s.Series
		}
		body[name] = s.Value
	}
	return json.Marshal(body)
}
