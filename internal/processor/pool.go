package processor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cadence/internal/analysis"
	"cadence/internal/config"
	"cadence/internal/library"
	"cadence/internal/logging"
)

// Number of consecutive failures after which a track is skipped permanently
// regardless of the configured retry limit.
const permanentSkipAttempts = 3

// Pool runs concurrent feature-extraction workers over an in-memory job
// queue backed by the track store. The zero value is not usable; construct
// with NewPool.
type Pool struct {
	cfg       *config.Config
	store     *library.Store
	extractor analysis.Extractor
	logger    *slog.Logger
	sessionID string

	mu             sync.Mutex
	queue          []*Job
	active         map[string]*Job
	stats          Stats
	totalProcessed float64 // sum of successful processing times, seconds
	lastCheckpoint int
	running        bool
	stopping       bool
	workerCount    int
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	scheduler *retryScheduler

	// snapshot, when set, is invoked after completions and failures so the
	// monitor can persist a progress sample. Optional.
	snapshot func(context.Context)
}

// NewPool constructs a worker pool over the given store and extractor.
func NewPool(cfg *config.Config, store *library.Store, extractor analysis.Extractor, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "processor"),
		sessionID: uuid.NewString(),
		active:    make(map[string]*Job),
		scheduler: newRetryScheduler(),
	}
}

// SetSnapshotFunc registers a hook invoked after terminal job outcomes.
// Must be called before Start.
func (p *Pool) SetSnapshotFunc(fn func(context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = fn
}

// SessionID returns the identifier assigned to this pool instance.
func (p *Pool) SessionID() string {
	return p.sessionID
}

// InitializeQueue replaces the queue with tracks that need analysis,
// ordered errored-first then by track ID. Tracks in error status get high
// priority so prior failures are retried before fresh work. Returns the
// number of jobs queued; a store error is logged and reported as zero.
func (p *Pool) InitializeQueue(ctx context.Context, limit int) int {
	if limit <= 0 {
		limit = p.cfg.Processing.QueueLimit
	}
	tracks, err := p.store.TracksNeedingAnalysis(ctx, limit)
	if err != nil {
		logging.ErrorWithContext(p.logger, "failed to initialize queue", "queue_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library database access"),
		)
		return 0
	}

	maxAttempts := p.cfg.Processing.MaxAttempts

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, job := range p.scheduler.drain() {
		job.transition(JobCancelled)
	}
	p.queue = p.queue[:0]
	for _, track := range tracks {
		priority := priorityNormal
		if track.Status == library.StatusError {
			priority = priorityRetryErrored
		}
		job := newJob(track.ID, track.FilePath, priority, maxAttempts)
		p.queue = append(p.queue, job)
	}
	sort.SliceStable(p.queue, func(i, k int) bool {
		if p.queue[i].Priority != p.queue[k].Priority {
			return p.queue[i].Priority < p.queue[k].Priority
		}
		return p.queue[i].TrackID < p.queue[k].TrackID
	})
	for _, job := range p.queue {
		job.transition(JobQueued)
	}

	p.stats = Stats{TotalJobs: len(p.queue), StartTime: time.Now()}
	p.totalProcessed = 0
	p.lastCheckpoint = 0

	p.logger.Info("queue initialized",
		logging.Int("jobs", len(p.queue)),
		logging.String(logging.FieldEventType, "queue_initialized"),
	)
	return len(p.queue)
}

// Start launches the worker pool. It refuses to start when the queue is
// empty or a previous run is still active, returning false in both cases.
// The optional progress callback fires on a fixed cadence with a fresh
// Progress view.
func (p *Pool) Start(ctx context.Context, progressFn func(Progress)) bool {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("processing already in progress",
			logging.String(logging.FieldEventType, "start_rejected"))
		return false
	}
	if len(p.queue) == 0 {
		p.mu.Unlock()
		p.logger.Warn("no jobs in queue to process",
			logging.String(logging.FieldEventType, "start_rejected"))
		return false
	}

	workers := p.cfg.Processing.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.running = true
	p.stopping = false
	p.workerCount = workers

	p.wg.Add(workers + 2)
	p.mu.Unlock()

	p.logger.Info("starting batch processing",
		logging.Int("workers", workers),
		logging.String("session_id", p.sessionID),
		logging.String(logging.FieldEventType, "processing_started"),
	)

	for i := 0; i < workers; i++ {
		go p.runWorker(runCtx, workerName(i))
	}
	go p.runScheduler(runCtx)
	go p.runProgressLoop(runCtx, progressFn)

	p.captureSnapshot(runCtx)
	return true
}

// Stop shuts the pool down gracefully. Workers are signalled between
// jobs, so anything already in flight finishes and is persisted; Stop
// waits up to the configured stop timeout for that, cancels pending
// retries, then writes a final checkpoint. Safe to call when the pool is
// not running.
func (p *Pool) Stop() bool {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return true
	}
	p.stopping = true
	cancel := p.cancel
	p.mu.Unlock()

	p.logger.Info("stopping batch processing",
		logging.String(logging.FieldEventType, "processing_stopping"))

	cancel()
	if !waitTimeout(&p.wg, p.stopTimeout()) {
		logging.WarnWithContext(p.logger, "workers did not stop within timeout", "stop_timeout",
			logging.Duration("timeout", p.stopTimeout()),
			logging.String(logging.FieldImpact, "in-flight jobs keep running detached"),
		)
	}

	p.mu.Lock()
	p.running = false
	p.stopping = false
	p.cancel = nil
	p.workerCount = 0
	for id := range p.active {
		delete(p.active, id)
	}
	for _, job := range p.scheduler.drain() {
		job.transition(JobCancelled)
	}
	p.saveCheckpointLocked()
	p.mu.Unlock()

	p.captureSnapshot(context.Background())
	p.logger.Info("batch processing stopped",
		logging.String(logging.FieldEventType, "processing_stopped"))
	return true
}

// Status reports the pool state and a progress snapshot.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := StateStopped
	if p.running {
		state = StateRunning
	}
	return Status{
		State:             state,
		Progress:          p.progressLocked(),
		Workers:           p.workerCount,
		ActiveJobs:        len(p.active),
		QueueSize:         len(p.queue),
		ShutdownRequested: p.stopping,
	}
}

// Idle reports whether no jobs remain queued, retrying, or in flight.
func (p *Pool) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && len(p.active) == 0 && p.scheduler.pending() == 0
}

func (p *Pool) progressLocked() Progress {
	processed := p.stats.CompletedJobs + p.stats.FailedJobs + p.stats.SkippedJobs
	percentage := 0.0
	if p.stats.TotalJobs > 0 {
		percentage = float64(processed) / float64(p.stats.TotalJobs) * 100
	}
	return Progress{
		TotalJobs:             p.stats.TotalJobs,
		CompletedJobs:         p.stats.CompletedJobs,
		FailedJobs:            p.stats.FailedJobs,
		RetryingJobs:          p.stats.RetryingJobs,
		SkippedJobs:           p.stats.SkippedJobs,
		ProcessingJobs:        len(p.active),
		ProgressPercentage:    percentage,
		SuccessRate:           p.stats.SuccessRate,
		AverageProcessingTime: p.stats.AverageProcessingTime,
		EstimatedCompletion:   p.stats.EstimatedCompletion,
		ActiveWorkers:         p.workerCount,
		QueueSize:             len(p.queue),
	}
}

func (p *Pool) updateStatsLocked() {
	processed := p.stats.CompletedJobs + p.stats.FailedJobs + p.stats.SkippedJobs
	if processed == 0 {
		return
	}
	if p.stats.CompletedJobs > 0 {
		p.stats.AverageProcessingTime = p.totalProcessed / float64(p.stats.CompletedJobs)
	} else {
		p.stats.AverageProcessingTime = 0
	}
	p.stats.SuccessRate = float64(p.stats.CompletedJobs) / float64(processed) * 100

	if p.stats.AverageProcessingTime > 0 && p.workerCount > 0 {
		remaining := p.stats.TotalJobs - processed
		seconds := float64(remaining) * p.stats.AverageProcessingTime / float64(p.workerCount)
		eta := time.Now().Add(time.Duration(seconds * float64(time.Second)))
		p.stats.EstimatedCompletion = &eta
	}
}

// runProgressLoop periodically refreshes derived statistics, invokes the
// progress callback, and persists checkpoints as completions accumulate.
func (p *Pool) runProgressLoop(ctx context.Context, progressFn func(Progress)) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.feedInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		p.updateStatsLocked()
		progress := p.progressLocked()
		if p.stats.CompletedJobs-p.lastCheckpoint >= p.checkpointInterval() {
			p.saveCheckpointLocked()
		}
		p.mu.Unlock()

		if progressFn != nil {
			progressFn(progress)
		}
	}
}

func (p *Pool) captureSnapshot(ctx context.Context) {
	p.mu.Lock()
	fn := p.snapshot
	p.mu.Unlock()
	if fn != nil {
		fn(ctx)
	}
}

func (p *Pool) pollInterval() time.Duration {
	return secondsOr(p.cfg.Processing.PollInterval, time.Second)
}

func (p *Pool) feedInterval() time.Duration {
	return secondsOr(p.cfg.Processing.FeedInterval, 5*time.Second)
}

func (p *Pool) stopTimeout() time.Duration {
	return secondsOr(p.cfg.Processing.StopTimeout, 10*time.Second)
}

func (p *Pool) checkpointInterval() int {
	if p.cfg.Processing.CheckpointInterval > 0 {
		return p.cfg.Processing.CheckpointInterval
	}
	return 50
}

func secondsOr(value int, fallback time.Duration) time.Duration {
	if value > 0 {
		return time.Duration(value) * time.Second
	}
	return fallback
}

// waitTimeout waits for the group with an upper bound, reporting whether
// the group finished in time.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
