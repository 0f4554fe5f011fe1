package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"waveline/internal/engine"
	"waveline/internal/queue"
)

type captureEnqueuer struct {
	batches []capturedBatch
}

type capturedBatch struct {
	paths []string
	group engine.GroupInfo
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, paths []string, group engine.GroupInfo) ([]*queue.Job, error) {
	c.batches = append(c.batches, capturedBatch{paths: paths, group: group})
	return nil, nil
}

func writeInboxFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestWatcherRequiresTwoStableScans(t *testing.T) {
	inbox := t.TempDir()
	target := &captureEnqueuer{}
	w := newWatcher(inbox, time.Second, target, nil)
	ctx := context.Background()

	path := writeInboxFile(t, inbox, "track.flac")

	w.scan(ctx)
	if len(target.batches) != 0 {
		t.Fatal("a file must not be enqueued on first sight")
	}

	w.scan(ctx)
	if len(target.batches) != 1 {
		t.Fatalf("expected 1 batch after settle, got %d", len(target.batches))
	}
	batch := target.batches[0]
	if len(batch.paths) != 1 || batch.paths[0] != path {
		t.Fatalf("unexpected batch %#v", batch)
	}
	if batch.group.ID != "" {
		t.Fatal("root-level file must not carry a group")
	}

	// Already enqueued files never come back.
	w.scan(ctx)
	if len(target.batches) != 1 {
		t.Fatalf("settled file was re-enqueued, batches=%d", len(target.batches))
	}
}

func TestWatcherWaitsForGrowingFile(t *testing.T) {
	inbox := t.TempDir()
	target := &captureEnqueuer{}
	w := newWatcher(inbox, time.Second, target, nil)
	ctx := context.Background()

	path := writeInboxFile(t, inbox, "copying.flac")
	w.scan(ctx)

	// Simulate a copy still in progress between scans.
	if err := os.WriteFile(path, []byte("audio-more-bytes"), 0o644); err != nil {
		t.Fatalf("grow file: %v", err)
	}
	w.scan(ctx)
	if len(target.batches) != 0 {
		t.Fatal("a growing file must not be enqueued")
	}

	w.scan(ctx)
	if len(target.batches) != 1 {
		t.Fatalf("expected enqueue once stable, got %d batches", len(target.batches))
	}
}

func TestWatcherGroupsFolderDrops(t *testing.T) {
	inbox := t.TempDir()
	target := &captureEnqueuer{}
	w := newWatcher(inbox, time.Second, target, nil)
	ctx := context.Background()

	writeInboxFile(t, inbox, filepath.Join("Best Album", "01.flac"))
	writeInboxFile(t, inbox, filepath.Join("Best Album", "02.flac"))
	writeInboxFile(t, inbox, "single.mp3")
	writeInboxFile(t, inbox, filepath.Join("Best Album", "cover.jpg"))

	w.scan(ctx)
	w.scan(ctx)

	if len(target.batches) != 2 {
		t.Fatalf("expected 2 batches (folder + standalone), got %d", len(target.batches))
	}

	var folder, standalone *capturedBatch
	for i := range target.batches {
		if target.batches[i].group.ID != "" {
			folder = &target.batches[i]
		} else {
			standalone = &target.batches[i]
		}
	}
	if folder == nil || standalone == nil {
		t.Fatalf("missing batch kinds: %#v", target.batches)
	}
	if folder.group.Name != "Best Album" {
		t.Fatalf("unexpected group name %q", folder.group.Name)
	}
	if len(folder.paths) != 2 {
		t.Fatalf("group should contain only audio files, got %v", folder.paths)
	}
	if len(standalone.paths) != 1 {
		t.Fatalf("unexpected standalone paths %v", standalone.paths)
	}
}

func TestWatcherSkipsMarkedSeen(t *testing.T) {
	inbox := t.TempDir()
	target := &captureEnqueuer{}
	w := newWatcher(inbox, time.Second, target, nil)
	ctx := context.Background()

	path := writeInboxFile(t, inbox, "known.flac")
	w.markSeen(path)

	w.scan(ctx)
	w.scan(ctx)
	if len(target.batches) != 0 {
		t.Fatalf("seen file was enqueued: %#v", target.batches)
	}
}
