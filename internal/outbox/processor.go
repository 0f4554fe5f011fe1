package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"waveline/internal/logging"
	"waveline/internal/queue"
)

// Sink receives finished artifacts. Implementations must tolerate repeated
// delivery of the same file path; the outbox retries before abandoning.
type Sink interface {
	Ingest(ctx context.Context, filePath string, jobID int64) error
}

// Store is the persistence surface the processor drains.
type Store interface {
	OutboxNextPending(ctx context.Context) (*queue.OutboxEntry, error)
	OutboxMarkFailure(ctx context.Context, id int64, ingestErr error) error
	OutboxMarkSuccess(ctx context.Context, id int64) error
}

// PassStats summarizes one drain pass.
type PassStats struct {
	Delivered int
	Failed    int
}

// Option configures optional Processor behavior.
type Option func(*Processor)

// WithPassCallback registers a metrics callback fired at most once per
// drain pass, regardless of how many entries the pass touched.
func WithPassCallback(fn func(PassStats)) Option {
	return func(p *Processor) {
		p.onPass = fn
	}
}

// WithWakeInterval overrides how often the background loop re-checks for
// entries whose backoff window has elapsed.
func WithWakeInterval(interval time.Duration) Option {
	return func(p *Processor) {
		if interval > 0 {
			p.wakeInterval = interval
		}
	}
}

// Processor drains the outbox against a sink.
type Processor struct {
	store  Store
	sink   Sink
	logger *slog.Logger
	onPass func(PassStats)

	wakeInterval time.Duration
	kick         chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProcessor constructs a processor. A nil logger is replaced with a noop.
func NewProcessor(store Store, sink Sink, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Processor{
		store:        store,
		sink:         sink,
		logger:       logging.WithComponent(logger, "outbox"),
		wakeInterval: 2 * time.Second,
		kick:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kick schedules a drain pass. Non-blocking; coalesces with a pending kick.
func (p *Processor) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Start launches the background drain loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("outbox processor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.run(runCtx)
	return nil
}

// Stop terminates the background loop and waits for it to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.wakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		case <-ticker.C:
		}
		p.Drain(ctx)
	}
}

// Drain runs one pass: deliver eligible entries until none remain. The
// metrics callback fires at most once per pass, and only when the pass
// attempted at least one delivery.
func (p *Processor) Drain(ctx context.Context) PassStats {
	var stats PassStats
	for {
		if ctx.Err() != nil {
			break
		}
		entry, err := p.store.OutboxNextPending(ctx)
		if err != nil {
			p.logger.Error("failed to fetch outbox entry", logging.Error(err))
			break
		}
		if entry == nil {
			break
		}

		if err := p.sink.Ingest(ctx, entry.FilePath, entry.JobID); err != nil {
			stats.Failed++
			p.logger.Warn("artifact hand-off failed",
				logging.String("file", entry.FilePath),
				logging.Int("attempts", entry.Attempts+1),
				logging.Error(err),
			)
			if markErr := p.store.OutboxMarkFailure(ctx, entry.ID, err); markErr != nil {
				p.logger.Error("failed to record outbox failure", logging.Error(markErr))
				break
			}
			continue
		}

		stats.Delivered++
		p.logger.Info("artifact handed off",
			logging.String("file", entry.FilePath),
			logging.Int64("job_id", entry.JobID),
		)
		if err := p.store.OutboxMarkSuccess(ctx, entry.ID); err != nil {
			p.logger.Error("failed to record outbox success", logging.Error(err))
			break
		}
	}

	if p.onPass != nil && (stats.Delivered > 0 || stats.Failed > 0) {
		p.onPass(stats)
	}
	return stats
}
