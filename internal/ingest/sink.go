package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"waveline/internal/config"
	"waveline/internal/outbox"
)

const userAgent = "Waveline/0.1.0"

// NewSink builds an ingestion sink backed by the configured library
// endpoint. When ingestion is disabled, a noop implementation is returned
// so the outbox drains immediately.
func NewSink(cfg *config.Config) outbox.Sink {
	if !cfg.Ingest.Enabled {
		return noopSink{}
	}

	timeout := time.Duration(cfg.Ingest.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &httpSink{
		endpoint: cfg.Ingest.URL + "/ingest",
		apiToken: cfg.Ingest.APIToken,
		client:   &http.Client{Timeout: timeout},
	}
}

type noopSink struct{}

func (noopSink) Ingest(ctx context.Context, filePath string, jobID int64) error {
	return nil
}

type httpSink struct {
	endpoint string
	apiToken string
	client   *http.Client
}

type ingestRequest struct {
	File  string `json:"file"`
	JobID int64  `json:"job_id,omitempty"`
}

// Ingest posts one artifact-ready event. The remote side is idempotent per
// file path, so a retried delivery after a transport failure is safe.
func (s *httpSink) Ingest(ctx context.Context, filePath string, jobID int64) error {
	body, err := json.Marshal(ingestRequest{File: filePath, JobID: jobID})
	if err != nil {
		return fmt.Errorf("encode ingest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ingest event: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest endpoint returned %s", resp.Status)
	}
	return nil
}
