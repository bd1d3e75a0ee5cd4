package httpproxy

import (
	"encoding/base64"
	"strings"
	"testing"
)

func mustSegment(claims string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(claims))
}

func TestTokenIssuerExtractsIss(t *testing.T) {
	token := "header." + mustSegment(`{"iss":"tenant1"}`) + ".sig"
	iss, err := TokenIssuer(token)
	if err != nil {
		t.Fatal(err)
	}
	if iss != "tenant1" {
		t.Fatalf("got %q", iss)
	}
}

func TestTokenIssuerRejectsMalformedSegmentCount(t *testing.T) {
	_, err := TokenIssuer("not-a-jwt")
	if err == nil || !strings.Contains(err.Error(), "three dot-separated") {
		t.Fatalf("got %v", err)
	}
}

func TestTokenIssuerRejectsMissingIssClaim(t *testing.T) {
	token := "header." + mustSegment(`{"sub":"x"}`) + ".sig"
	_, err := TokenIssuer(token)
	if err == nil || !strings.Contains(err.Error(), "missing iss") {
		t.Fatalf("got %v", err)
	}
}

func TestTokenIssuerRejectsInvalidJSON(t *testing.T) {
	token := "header." + mustSegment(`not json`) + ".sig"
	_, err := TokenIssuer(token)
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Fatalf("got %v", err)
	}
}
