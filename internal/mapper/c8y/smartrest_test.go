package c8y

import (
	"testing"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
)

func TestAlarmRaiseLineUsesSeverityTemplate(t *testing.T) {
	tm, _ := time.Parse(time.RFC3339, "2021-04-23T19:00:00+05:00")
	a := mapper.Alarm{Severity: "critical", Name: "temperature_alarm", Text: "I raised it", Time: tm}
	got, err := AlarmRaiseLine(a, mapper.DefaultSmartRESTThreshold)
	if err != nil {
		t.Fatal(err)
	}
	want := `301,temperature_alarm,"I raised it",2021-04-23T19:00:00+05:00`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAlarmRaiseLineRejectsUnknownSeverity(t *testing.T) {
	a := mapper.Alarm{Severity: "catastrophic", Name: "x", Text: "y", Time: time.Now()}
	if _, err := AlarmRaiseLine(a, mapper.DefaultSmartRESTThreshold); err == nil {
		t.Fatal("expected UnsupportedAlarmSeverity error")
	}
}

func TestAlarmClearLine(t *testing.T) {
	got := AlarmClearLine("temperature_alarm")
	if got != "306,temperature_alarm" {
		t.Fatalf("got %q", got)
	}
}

func TestMeasurementLineFlattensGroups(t *testing.T) {
	raw := []byte(`{"time":"2021-04-23T19:00:00+05:00","temperature":25.3,"coordinate":{"x":1}}`)
	m, err := mapper.ParseMeasurement(raw, mapper.DefaultJSONThreshold)
	if err != nil {
		t.Fatal(err)
	}
	line, err := MeasurementLine(m, mapper.DefaultSmartRESTThreshold)
	if err != nil {
		t.Fatal(err)
	}
	want := "200,2021-04-23T19:00:00+05:00,temperature,25.3,coordinate_x,1"
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}
}

func TestOperationStatusLines(t *testing.T) {
	if got := OperationExecutingLine("software_update"); got != "501,software_update" {
		t.Fatalf("got %q", got)
	}
	if got := OperationSuccessLine("software_update"); got != "503,software_update" {
		t.Fatalf("got %q", got)
	}
	if got := OperationFailedLine("software_update", `bad "thing"`, mapper.DefaultSmartRESTThreshold); got != `502,software_update,"bad ""thing"""` {
		t.Fatalf("got %q", got)
	}
}
