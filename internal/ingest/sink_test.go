package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"waveline/internal/config"
)

func TestNoopSinkWhenDisabled(t *testing.T) {
	cfg := config.Default()
	sink := NewSink(&cfg)
	if err := sink.Ingest(context.Background(), "/artifacts/track.json", 1); err != nil {
		t.Fatalf("noop sink should always succeed: %v", err)
	}
}

func TestHTTPSinkPostsEvent(t *testing.T) {
	var got ingestRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ingest" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Ingest.Enabled = true
	cfg.Ingest.URL = server.URL
	cfg.Ingest.APIToken = "secret"
	sink := NewSink(&cfg)

	if err := sink.Ingest(context.Background(), "/artifacts/track.json", 42); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if got.File != "/artifacts/track.json" || got.JobID != 42 {
		t.Fatalf("unexpected payload %#v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
}

func TestHTTPSinkRejectsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "library offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Ingest.Enabled = true
	cfg.Ingest.URL = server.URL
	sink := NewSink(&cfg)

	if err := sink.Ingest(context.Background(), "/artifacts/track.json", 1); err == nil {
		t.Fatal("expected error for 5xx response")
	}
}
