package az

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
)

func TestTranslateInjectsTimestampWhenMissing(t *testing.T) {
	c := New()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return fixed }

	m, err := mapper.ParseMeasurement([]byte(`{"temperature":25.3}`), mapper.DefaultJSONThreshold)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Translate(m)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(out, &body); err != nil {
		t.Fatal(err)
	}
	if body["time"] != fixed.Format(time.RFC3339) {
		t.Fatalf("got time %v", body["time"])
	}
	if body["temperature"] != 25.3 {
		t.Fatalf("got temperature %v", body["temperature"])
	}
}

func TestTranslatePreservesExplicitTimestamp(t *testing.T) {
	c := New()
	m, err := mapper.ParseMeasurement([]byte(`{"time":"2021-04-23T19:00:00+05:00","temperature":1}`), mapper.DefaultJSONThreshold)
	if err != nil {
		t.Fatal(err)
	}
	out, _ := c.Translate(m)
	var body map[string]any
	json.Unmarshal(out, &body)
	if body["time"] != "2021-04-23T19:00:00+05:00" {
		t.Fatalf("got %v", body["time"])
	}
}
