package mqttactor

import (
	"math/rand"
	"testing"
	"time"
)

func TestNextBackoffGrowsAndCaps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for attempt, want := range map[int]time.Duration{
		0: 1 * time.Second,
		1: 2 * time.Second,
		2: 4 * time.Second,
		8: maxBackoff,
	} {
		d := nextBackoff(attempt, rng)
		lo := time.Duration(float64(want) * (1 - jitterFraction))
		hi := time.Duration(float64(want) * (1 + jitterFraction))
		if d < lo || d > hi {
			t.Fatalf("attempt %d: got %v, want within [%v, %v]", attempt, d, lo, hi)
		}
	}
}

func TestNextBackoffNeverExceedsCapPlusJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	hi := time.Duration(float64(maxBackoff) * (1 + jitterFraction))
	for attempt := 0; attempt < 30; attempt++ {
		d := nextBackoff(attempt, rng)
		if d > hi {
			t.Fatalf("attempt %d: got %v, want <= %v", attempt, d, hi)
		}
	}
}

func TestFilterMatchesExact(t *testing.T) {
	if !filterMatches("te/device/main///m/temperature", "te/device/main///m/temperature") {
		t.Fatal("expected exact match")
	}
	if filterMatches("te/device/main///m/temperature", "te/device/main///m/humidity") {
		t.Fatal("expected mismatch")
	}
}

func TestFilterMatchesSingleLevelWildcard(t *testing.T) {
	if !filterMatches("te/device/+///m/+", "te/device/child1///m/temperature") {
		t.Fatal("expected + to match one segment")
	}
	if filterMatches("te/device/+///m/+", "te/device/child1/service/foo/m/temperature") {
		t.Fatal("+ must not match multiple segments")
	}
}

func TestFilterMatchesMultiLevelWildcard(t *testing.T) {
	if !filterMatches("te/#", "te/device/main///m/temperature") {
		t.Fatal("expected # to match everything under te/")
	}
	if !filterMatches("te/#", "te") {
		t.Fatal("# must also match its parent level per MQTT wildcard semantics")
	}
}
