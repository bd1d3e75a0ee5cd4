package mapper

import "testing"

func TestParseMeasurementScalarAndGrouped(t *testing.T) {
	raw := []byte(`{"time":"2021-04-23T19:00:00+05:00","temperature":25.3,"coordinate":{"x":1,"y":2}}`)
	m, err := ParseMeasurement(raw, DefaultJSONThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if m.Time == nil {
		t.Fatal("expected time to be parsed")
	}
	if m.Groups[""]["temperature"] != 25.3 {
		t.Fatalf("got %v", m.Groups[""]["temperature"])
	}
	if m.Groups["coordinate"]["x"] != 1 {
		t.Fatalf("got %v", m.Groups["coordinate"]["x"])
	}
}

func TestParseMeasurementRejectsNonNumericLeaf(t *testing.T) {
	raw := []byte(`{"temperature":"hot"}`)
	if _, err := ParseMeasurement(raw, DefaultJSONThreshold); err == nil {
		t.Fatal("expected error for non-numeric leaf")
	}
}

func TestParseMeasurementRejectsOversizedPayload(t *testing.T) {
	raw := []byte(`{"temperature":1}`)
	if _, err := ParseMeasurement(raw, 4); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	raw := []byte(`{"b":2,"a":1,"group":{"z":1,"a":2}}`)
	m, err := ParseMeasurement(raw, DefaultJSONThreshold)
	if err != nil {
		t.Fatal(err)
	}
	got := m.Flatten()
	want := []FlatSeries{
		{Group: "", Series: "a", Value: 1},
		{Group: "", Series: "b", Value: 2},
		{Group: "group", Series: "a", Value: 2},
		{Group: "group", Series: "z", Value: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSanitiseKeepsAllowedControlChars(t *testing.T) {
	got := Sanitise("a\tb\r\nc\x01d", 1000)
	want := "a\tb\r\nc" + "d"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitiseDoublesQuotes(t *testing.T) {
	got := Sanitise(`say "hi"`, 1000)
	want := `say ""hi""`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitiseTruncatesOnUTF8Boundary(t *testing.T) {
	got := Sanitise("héllo", 2)
	if len([]byte(got)) > 2 {
		t.Fatalf("result %q exceeds byte budget", got)
	}
}
