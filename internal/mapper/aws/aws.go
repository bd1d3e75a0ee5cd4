// Package aws translates canonical measurements into the AWS IoT Core
// device shadow / topic payload shape. Like az, AWS requires no alarm
// reconciliation: it is a thin pass-through plus timestamp injection
// (§4.4).
package aws

import (
	"encoding/json"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
)

// InTopic and OutTopic are the legacy measurement ingress and AWS IoT
// Core egress topics this converter bridges. AWS has no upstream
// reference converter in the original implementation to ground a
// topic name on; OutTopic follows AWS IoT's device-topic convention
// (a thing-scoped namespace under "aws/td/") since there is no single
// well-known flat topic the way az/messages/events/ is for Azure.
const (
	InTopic  = "tedge/measurements"
	OutTopic = "aws/td/measurements"
)

// Converter mirrors az.Converter's shape; kept as a distinct type
// rather than a shared implementation because the two backends'
// wire envelopes are independently specified and may diverge (e.g.
// AWS's "state.reported" shadow nesting) even though today's payload
// shape is identical to az's flattened body.
type Converter struct {
	InjectTimestamp bool
	Now             func() time.Time
}

// New returns a Converter with timestamp injection enabled.
func New() *Converter {
	return &Converter{InjectTimestamp: true, Now: time.Now}
}

// Translate converts a canonical Measurement into the AWS IoT flat
// JSON payload, with grouped series flattened as "group_series".
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
