package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"waveline/internal/analyzer"
	"waveline/internal/artifactcache"
	"waveline/internal/config"
	"waveline/internal/fileutil"
	"waveline/internal/logging"
	"waveline/internal/queue"
	"waveline/internal/sidecar"
)

// Runner executes a prepared analyzer argument vector.
type Runner interface {
	Run(ctx context.Context, args []string) analyzer.Result
}

// OutboxNotifier wakes the outbox processor after a successful run.
type OutboxNotifier interface {
	Kick()
}

// GroupInfo ties a batch of enqueued files to the folder they came from.
type GroupInfo struct {
	ID   string
	Name string
	Root string
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithErrorRetryInterval overrides how long the worker waits after a store
// error before polling again.
func WithErrorRetryInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.errorInterval = interval
		}
	}
}

// Engine runs queued jobs one at a time in enqueue order. A single worker
// goroutine owns execution; every other method only mutates queue state.
type Engine struct {
	cfg      *config.Config
	store    *queue.Store
	runner   Runner
	resolver *sidecar.Resolver
	notifier OutboxNotifier
	cache    *artifactcache.Client
	logger   *slog.Logger

	errorInterval time.Duration
	kick          chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an engine. The cache client may be nil (cache disabled);
// the notifier may be nil when no outbox processor is running.
func New(cfg *config.Config, store *queue.Store, runner Runner, notifier OutboxNotifier, cache *artifactcache.Client, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	errorInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorInterval <= 0 {
		errorInterval = 5 * time.Second
	}
	e := &Engine{
		cfg:           cfg,
		store:         store,
		runner:        runner,
		resolver:      sidecar.NewResolver(cfg.Paths.ArtifactDir, cfg.Analyzer.OutputExtension),
		notifier:      notifier,
		cache:         cache,
		logger:        logging.WithComponent(logger, "engine"),
		errorInterval: errorInterval,
		kick:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue registers source files as pending jobs with their execution plan
// fixed up front. Missing files are rejected before anything is inserted.
func (e *Engine) Enqueue(ctx context.Context, paths []string, group GroupInfo) ([]*queue.Job, error) {
	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(strings.TrimSpace(path))
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("source file %q: %w", abs, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("source %q is a directory", abs)
		}
		resolved = append(resolved, abs)
	}

	jobs := make([]*queue.Job, 0, len(resolved))
	for _, path := range resolved {
		outputPath := e.plannedOutput(path)
		job, err := e.store.NewJob(ctx, queue.NewJobParams{
			SourcePath:  path,
			DisplayName: analyzer.DisplayName(path),
			GroupID:     group.ID,
			GroupName:   group.Name,
			GroupRoot:   group.Root,
			CommandArgs: analyzer.BuildPlan(e.cfg.Analyzer, path, outputPath),
			OutputPath:  outputPath,
		})
		if err != nil {
			return jobs, err
		}
		e.logger.Info("job enqueued",
			logging.Int64("job_id", job.ID),
			logging.String("source", path),
		)
		jobs = append(jobs, job)
	}

	e.Kick()
	return jobs, nil
}

func (e *Engine) plannedOutput(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "artifact"
	}
	extension := strings.TrimSpace(e.cfg.Analyzer.OutputExtension)
	if extension == "" {
		extension = ".json"
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return filepath.Join(e.cfg.Paths.ArtifactDir, stem+extension)
}

// Kick signals the worker that new work may exist, covering an enqueue
// that races with the worker's empty-queue check. It does not start a
// worker; use Start for that.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine, which executes pending jobs in
// order and exits when none remain. Calling Start while a worker is
// already running is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.wg.Add(1)
	go e.run(runCtx)
	return nil
}

// Stop halts execution: the in-flight job is terminated and marked canceled,
// every pending job is canceled, and the worker goroutine exits. Finished
// jobs are untouched. Safe to call when the engine is not running.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	// Persist the cancellation before tearing down the worker so its
	// post-run status check observes canceled and discards the result.
	if _, err := e.store.CancelRunning(ctx, queue.UserStopReason); err != nil {
		return err
	}
	if _, err := e.store.CancelPending(ctx, queue.UserStopReason); err != nil {
		return err
	}

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	// A job the worker claimed between the two sweeps above was in neither
	// of them. The worker has exited, so anything still marked running
	// belongs to this stop.
	if _, err := e.store.CancelRunning(ctx, queue.UserStopReason); err != nil {
		return err
	}
	return nil
}

// Shutdown halts the worker without touching queue state. An in-flight
// analyzer process is killed but its job stays marked running, so the next
// store open normalizes it to failed as interrupted. Use Stop for the user
// facing cancel-everything operation.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// ResumeCanceled moves canceled jobs back to pending. It does not start
// execution; call Start for that.
func (e *Engine) ResumeCanceled(ctx context.Context) (int64, error) {
	count, err := e.store.ResumeCanceled(ctx)
	if err == nil && count > 0 {
		e.Kick()
	}
	return count, err
}

// ClearCompleted removes done jobs.
func (e *Engine) ClearCompleted(ctx context.Context) (int64, error) {
	return e.store.Clear(ctx, queue.StatusDone)
}

// ClearCanceledFailed removes failed and canceled jobs.
func (e *Engine) ClearCanceledFailed(ctx context.Context) (int64, error) {
	return e.store.Clear(ctx, queue.StatusFailed, queue.StatusCanceled)
}

// ClearAll removes every job that is not currently running.
func (e *Engine) ClearAll(ctx context.Context) (int64, error) {
	return e.store.ClearAll(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		if ctx.Err() != nil {
			e.retire()
			return
		}
		job, err := e.store.NextPending(ctx)
		if err != nil {
			e.logger.Error("failed to fetch next job", logging.Error(err))
			if !e.sleep(ctx, e.errorInterval) {
				e.retire()
				return
			}
			continue
		}
		if job == nil {
			if e.drainKick() {
				continue
			}
			e.retire()
			return
		}
		e.process(ctx, job)
	}
}

// drainKick consumes a pending wake-up, covering an Enqueue that raced
// with the empty-queue check.
func (e *Engine) drainKick() bool {
	select {
	case <-e.kick:
		return true
	default:
		return false
	}
}

// retire marks the worker stopped and releases its context.
func (e *Engine) retire() {
	e.mu.Lock()
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-e.kick:
		return true
	case <-timer.C:
		return true
	}
}

func (e *Engine) process(ctx context.Context, job *queue.Job) {
	if ctx.Err() != nil {
		return
	}
	now := time.Now().UTC()
	job.Status = queue.StatusRunning
	job.StartedAt = &now
	job.FinishedAt = nil
	job.ErrorMessage = ""
	job.Attempts++
	// Guarded claim: a job canceled or cleared since the pending fetch
	// must not be dragged back to running.
	claimed, err := e.store.UpdateIf(ctx, job, queue.StatusPending)
	if err != nil {
		e.logger.Error("failed to mark job running", logging.Int64("job_id", job.ID), logging.Error(err))
		return
	}
	if !claimed {
		e.logger.Info("skipping job no longer pending", logging.Int64("job_id", job.ID))
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.logger.Info("job started",
		logging.Int64("job_id", job.ID),
		logging.String("source", job.SourcePath),
	)

	finalPath, tempPath, err := e.resolver.Resolve(job.OutputPath, job.SourcePath)
	if err != nil {
		e.finish(job, func(j *queue.Job) {
			j.SetFailed(fmt.Sprintf("prepare artifact paths: %v", err))
		})
		return
	}

	if e.tryCache(jobCtx, job, finalPath, tempPath) {
		return
	}

	result := e.runner.Run(jobCtx, planWithTemp(job.CommandArgs, tempPath))

	if result.Failed() {
		sidecar.CleanupTemp(tempPath)
		e.finish(job, func(j *queue.Job) {
			j.SetFailed(result.FailureMessage())
		})
		return
	}

	if err := e.resolver.Finalize(tempPath, finalPath); err != nil {
		e.finish(job, func(j *queue.Job) {
			j.SetFailed(fmt.Sprintf("finalize artifact: %v", err))
		})
		return
	}
	e.complete(job, finalPath)
}

// tryCache serves the job from the remote artifact cache when possible.
// Cache failures are soft: the job falls through to a normal analyzer run.
func (e *Engine) tryCache(ctx context.Context, job *queue.Job, finalPath, tempPath string) bool {
	if e.cache == nil {
		return false
	}
	cachedPath, hit, err := e.cache.Fetch(ctx, job.SourcePath)
	if err != nil {
		e.logger.Warn("artifact cache lookup failed",
			logging.Int64("job_id", job.ID),
			logging.Error(err),
		)
		return false
	}
	if !hit {
		return false
	}
	if err := fileutil.CopyFile(cachedPath, tempPath); err != nil {
		e.logger.Warn("failed to copy cached artifact",
			logging.Int64("job_id", job.ID),
			logging.Error(err),
		)
		sidecar.CleanupTemp(tempPath)
		return false
	}
	if err := e.resolver.Finalize(tempPath, finalPath); err != nil {
		e.logger.Warn("failed to finalize cached artifact",
			logging.Int64("job_id", job.ID),
			logging.Error(err),
		)
		sidecar.CleanupTemp(tempPath)
		return false
	}
	e.logger.Info("artifact served from cache", logging.Int64("job_id", job.ID))
	e.complete(job, finalPath)
	return true
}

// planWithTemp swaps the prepared output path for the run's temp path. The
// output path is always the final argv element.
func planWithTemp(args []string, tempPath string) []string {
	if len(args) == 0 {
		return args
	}
	swapped := make([]string, len(args))
	copy(swapped, args)
	swapped[len(swapped)-1] = tempPath
	return swapped
}

func (e *Engine) complete(job *queue.Job, finalPath string) {
	done := e.finish(job, func(j *queue.Job) {
		now := time.Now().UTC()
		j.Status = queue.StatusDone
		j.SidecarPath = finalPath
		j.ErrorMessage = ""
		j.FinishedAt = &now
	})
	if !done {
		return
	}

	ctx := context.Background()
	if _, err := e.store.OutboxEnqueue(ctx, finalPath, job.ID); err != nil {
		e.logger.Error("failed to enqueue artifact hand-off",
			logging.Int64("job_id", job.ID),
			logging.Error(err),
		)
		return
	}
	if e.notifier != nil {
		e.notifier.Kick()
	}
	e.logger.Info("job finished",
		logging.Int64("job_id", job.ID),
		logging.String("artifact", finalPath),
	)
}

// finish applies a terminal mutation to the job, but only if the job is
// still running in the store. A job that was canceled mid-run keeps its
// canceled state and the late result is discarded. Reads and writes use a
// background context so shutdown cannot interrupt the final bookkeeping.
func (e *Engine) finish(job *queue.Job, mutate func(*queue.Job)) bool {
	e.mu.Lock()
	active := e.running
	e.mu.Unlock()
	if !active {
		// Shutdown in progress. Leave the job as the store has it.
		return false
	}

	ctx := context.Background()
	fresh, err := e.store.GetByID(ctx, job.ID)
	if err != nil {
		e.logger.Error("failed to reload job", logging.Int64("job_id", job.ID), logging.Error(err))
		return false
	}
	if fresh == nil || fresh.Status != queue.StatusRunning {
		e.logger.Info("discarding result for job no longer running",
			logging.Int64("job_id", job.ID),
		)
		return false
	}
	mutate(fresh)
	// Guarded write: a cancellation landing after the reload above wins,
	// and this result is discarded.
	committed, err := e.store.UpdateIf(ctx, fresh, queue.StatusRunning)
	if err != nil {
		e.logger.Error("failed to persist job result", logging.Int64("job_id", job.ID), logging.Error(err))
		return false
	}
	if !committed {
		e.logger.Info("discarding result for job no longer running",
			logging.Int64("job_id", job.ID),
		)
		return false
	}
	*job = *fresh
	return true
}
