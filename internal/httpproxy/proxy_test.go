package httpproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeTokenSource struct{ token string }

func (f fakeTokenSource) RequestToken(ctx context.Context) (string, error) {
	return f.token, nil
}

func TestResolveInternalIDCachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"managedObject": map[string]string{"id": "12345"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, fakeTokenSource{token: "tok"}, nil)
	id, err := c.ResolveInternalID(context.Background(), "device-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Fatalf("got id %q", id)
	}

	if _, err := c.ResolveInternalID(context.Background(), "device-1"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit on second call, got %d http calls", calls)
	}
}

func TestResolveInternalIDNotFoundReturnsChildDeviceNotRegistered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, fakeTokenSource{token: "tok"}, nil)
	_, err := c.ResolveInternalID(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("got %v", err)
	}
}

func TestCreateEventResolvesIDAndReturnsEventID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/identity/"):
			json.NewEncoder(w).Encode(map[string]any{"managedObject": map[string]string{"id": "99"}})
		case r.URL.Path == "/event/events":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["source"].(map[string]any)["id"] != "99" {
				t.Fatalf("event posted against wrong source: %v", body)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "evt-1"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, fakeTokenSource{token: "tok"}, nil)
	id, err := c.CreateEvent(context.Background(), "device-1", EventRequest{
		Type: "my_Event", Text: "hello", Time: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "evt-1" {
		t.Fatalf("got %q", id)
	}
}

func TestUploadBinaryPostsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Fatalf("expected multipart content type, got %q", r.Header.Get("Content-Type"))
		}
		if !strings.Contains(r.URL.Path, "/binaries") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, fakeTokenSource{token: "tok"}, nil)
	err := c.UploadBinary(context.Background(), "evt-1", "log.txt", "text/plain", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
}
