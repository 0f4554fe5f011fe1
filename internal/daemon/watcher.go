package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"waveline/internal/engine"
	"waveline/internal/logging"
	"waveline/internal/queue"
)

// audioExtensions lists the source formats the inbox watcher picks up.
var audioExtensions = map[string]struct{}{
	".aac":  {},
	".aiff": {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
	".wv":   {},
}

type enqueuer interface {
	Enqueue(ctx context.Context, paths []string, group engine.GroupInfo) ([]*queue.Job, error)
}

type fileState struct {
	size    int64
	modTime time.Time
}

// watcher polls the inbox directory for dropped audio files. A file is
// enqueued only after its size and modification time hold steady across two
// consecutive scans, so half-copied files are never picked up. Files
// directly in the inbox root become standalone jobs; each subfolder becomes
// one group.
type watcher struct {
	inboxDir string
	interval time.Duration
	target   enqueuer
	logger   *slog.Logger

	pending map[string]fileState
	seen    map[string]struct{}
}

func newWatcher(inboxDir string, interval time.Duration, target enqueuer, logger *slog.Logger) *watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &watcher{
		inboxDir: inboxDir,
		interval: interval,
		target:   target,
		logger:   logging.WithComponent(logger, "watcher"),
		pending:  make(map[string]fileState),
		seen:     make(map[string]struct{}),
	}
}

// markSeen records paths that must never be enqueued again, typically
// sources already present in the queue from a previous session.
func (w *watcher) markSeen(paths ...string) {
	for _, path := range paths {
		w.seen[path] = struct{}{}
	}
}

func (w *watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan performs one poll pass: track new files, settle stable ones, and
// enqueue what settled, grouped by top-level inbox entry.
func (w *watcher) scan(ctx context.Context) {
	groups := make(map[string][]string)
	var order []string

	walkErr := filepath.WalkDir(w.inboxDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() || !isAudioFile(path) {
			return nil
		}
		if _, done := w.seen[path]; done {
			return nil
		}

		info, statErr := entry.Info()
		if statErr != nil {
			return nil
		}
		current := fileState{size: info.Size(), modTime: info.ModTime()}
		previous, tracked := w.pending[path]
		w.pending[path] = current
		if !tracked || previous != current {
			return nil
		}

		root := w.groupRoot(path)
		if _, known := groups[root]; !known {
			order = append(order, root)
		}
		groups[root] = append(groups[root], path)
		return nil
	})
	if walkErr != nil {
		w.logger.Warn("inbox scan failed", logging.Error(walkErr))
		return
	}

	for _, root := range order {
		paths := groups[root]
		group := engine.GroupInfo{}
		if root != "" {
			group = engine.GroupInfo{
				ID:   uuid.NewString(),
				Name: filepath.Base(root),
				Root: root,
			}
		}
		if _, err := w.target.Enqueue(ctx, paths, group); err != nil {
			w.logger.Error("failed to enqueue dropped files",
				logging.String("group", group.Name),
				logging.Error(err),
			)
			continue
		}
		for _, path := range paths {
			w.seen[path] = struct{}{}
			delete(w.pending, path)
		}
		w.logger.Info("picked up dropped files",
			logging.Int("count", len(paths)),
			logging.String("group", group.Name),
		)
	}
}

// groupRoot returns the top-level inbox subfolder containing path, or the
// empty string for files dropped directly into the inbox root.
func (w *watcher) groupRoot(path string) string {
	rel, err := filepath.Rel(w.inboxDir, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return ""
	}
	return filepath.Join(w.inboxDir, parts[0])
}

func isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := audioExtensions[ext]
	return ok
}
