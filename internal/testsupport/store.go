package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"waveline/internal/config"
	"waveline/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, sourcePath string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.NewJobParams{SourcePath: sourcePath})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}

// WriteSourceFile creates a small source file under the config inbox dir.
func WriteSourceFile(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()

	if err := os.MkdirAll(cfg.Paths.InboxDir, 0o755); err != nil {
		t.Fatalf("mkdir inbox: %v", err)
	}
	path := filepath.Join(cfg.Paths.InboxDir, name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}
