package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"waveline/internal/analyzer"
	"waveline/internal/artifactcache"
	"waveline/internal/config"
	"waveline/internal/engine"
	"waveline/internal/ingest"
	"waveline/internal/logging"
	"waveline/internal/outbox"
	"waveline/internal/queue"
)

// ErrAlreadyRunning indicates another daemon instance holds the lock file.
var ErrAlreadyRunning = errors.New("another waveline daemon is already running")

// Daemon owns the long-running services: the queue store, the execution
// engine, the outbox processor, and the inbox watcher. One instance runs
// per host, enforced with a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	lock      *flock.Flock
	store     *queue.Store
	engine    *engine.Engine
	processor *outbox.Processor
	watcher   *watcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon. Nothing is started until Start is called.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "daemon"),
	}
}

// Start acquires the instance lock, opens the queue, and launches every
// service. Jobs interrupted by a previous session surface as failed as a
// side effect of opening the store.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(d.cfg.Paths.LogDir, "waveline.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !acquired {
		return ErrAlreadyRunning
	}
	d.lock = lock

	store, err := queue.Open(d.cfg)
	if err != nil {
		d.releaseLock()
		return err
	}
	d.store = store

	sink := ingest.NewSink(d.cfg)
	d.processor = outbox.NewProcessor(store, sink, d.logger)
	runner := analyzer.NewCommandRunner(d.cfg.Analyzer)
	cache := artifactcache.New(d.cfg)
	d.engine = engine.New(d.cfg, store, runner, d.processor, cache, d.logger)

	runCtx, cancel := context.WithCancel(ctx)

	pollInterval := time.Duration(d.cfg.Workflow.InboxPollInterval) * time.Second
	target := &startingEnqueuer{engine: d.engine, runCtx: runCtx}
	d.watcher = newWatcher(d.cfg.Paths.InboxDir, pollInterval, target, d.logger)
	d.preloadSeen(ctx)

	if err := d.processor.Start(runCtx); err != nil {
		cancel()
		d.teardown()
		return err
	}
	if err := d.engine.Start(runCtx); err != nil {
		cancel()
		d.processor.Stop()
		d.teardown()
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watcher.run(runCtx)
	}()
	// Jobs can also arrive from CLI invocations in other processes, which
	// cannot relaunch a retired worker. Re-arm it periodically; Start is a
	// no-op while the worker is live.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.watcher.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := d.engine.Start(runCtx); err != nil {
					d.logger.Error("failed to re-arm engine", logging.Error(err))
				}
			}
		}
	}()

	d.cancel = cancel
	d.running = true
	d.logger.Info("daemon started",
		logging.String("inbox", d.cfg.Paths.InboxDir),
		logging.String("queue_db", store.Path()),
	)
	return nil
}

// preloadSeen prevents re-enqueueing sources that already have a job from a
// previous session.
func (d *Daemon) preloadSeen(ctx context.Context) {
	jobs, err := d.store.List(ctx)
	if err != nil {
		d.logger.Warn("failed to preload known sources", logging.Error(err))
		return
	}
	for _, job := range jobs {
		d.watcher.markSeen(job.SourcePath)
	}
}

// Run starts the daemon and blocks until the context is canceled, then
// shuts everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return d.Stop()
}

// Stop halts the watcher, engine, and outbox processor, then releases the
// lock and closes the queue. Queue state is left untouched: pending jobs
// stay pending and a killed in-flight job surfaces as interrupted on the
// next start.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}

	// Halt the worker before releasing the run context. The other order
	// kills the analyzer while the engine still looks live, and the dying
	// runner's exit status gets recorded as a failure instead of being
	// discarded for recovery on the next start.
	d.engine.Shutdown()
	d.cancel()
	d.wg.Wait()
	// A re-arm tick may have relaunched the worker between the two calls
	// above.
	d.engine.Shutdown()
	d.processor.Stop()
	d.teardown()

	d.running = false
	d.cancel = nil
	d.logger.Info("daemon stopped")
	return nil
}

// startingEnqueuer restarts the engine worker after every inbox pickup.
// The worker retires when the queue drains, so new drops must relaunch it.
type startingEnqueuer struct {
	engine *engine.Engine
	runCtx context.Context
}

func (s *startingEnqueuer) Enqueue(ctx context.Context, paths []string, group engine.GroupInfo) ([]*queue.Job, error) {
	jobs, err := s.engine.Enqueue(ctx, paths, group)
	if err != nil {
		return jobs, err
	}
	return jobs, s.engine.Start(s.runCtx)
}

func (d *Daemon) teardown() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error("failed to close queue store", logging.Error(err))
		}
		d.store = nil
	}
	d.releaseLock()
}

func (d *Daemon) releaseLock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Error("failed to release instance lock", logging.Error(err))
	}
	d.lock = nil
}
