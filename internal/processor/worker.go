package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cadence/internal/analysis"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/services"
)

func workerName(n int) string {
	return fmt.Sprintf("worker-%d", n)
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()

	logger := p.logger.With(logging.String(logging.FieldWorkerID, workerID))
	logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_started"))

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped",
				logging.String(logging.FieldEventType, "worker_stopped"))
			return
		default:
		}

		job := p.nextJob(workerID)
		if job == nil {
			select {
			case <-ctx.Done():
			case <-time.After(p.pollInterval()):
			}
			continue
		}

		// Shutdown is cooperative: cancellation is only observed between
		// jobs, so a job already in flight runs to completion with its
		// status persisted even while the pool is stopping.
		p.processJob(context.WithoutCancel(ctx), logger, workerID, job)
	}
}

// nextJob pops the highest-priority queued job and marks it in flight.
func (p *Pool) nextJob(workerID string) *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil
	}
	job := p.queue[0]
	p.queue = p.queue[1:]

	now := time.Now()
	job.transition(JobProcessing)
	job.StartedAt = &now
	job.WorkerID = workerID
	p.active[workerID] = job
	return job
}

func (p *Pool) processJob(ctx context.Context, logger *slog.Logger, workerID string, job *Job) {
	defer func() {
		p.mu.Lock()
		delete(p.active, workerID)
		p.mu.Unlock()
	}()

	jobCtx := services.WithTrackID(services.WithWorkerID(ctx, workerID), job.TrackID)
	jobLogger := logger.With(logging.Int64(logging.FieldTrackID, job.TrackID))
	jobLogger.Info("processing job",
		logging.Int("attempt", job.Attempts+1),
		logging.String(logging.FieldEventType, "job_started"),
	)

	if err := p.store.UpdateStatus(jobCtx, job.TrackID, library.StatusAnalyzing, ""); err != nil {
		logging.WarnWithContext(jobLogger, "failed to mark track analyzing", "status_update_failed",
			logging.Error(err))
	}

	start := time.Now()
	features, err := p.extractor.Extract(jobCtx, job.SourcePath)
	if err != nil {
		p.handleFailure(jobCtx, jobLogger, job, err)
		return
	}

	if _, ok := features["analysis_version"]; !ok {
		features["analysis_version"] = analysis.Version
	}
	if err := p.store.StoreFeatures(jobCtx, job.TrackID, features); err != nil {
		p.handleFailure(jobCtx, jobLogger, job, fmt.Errorf("store features: %w", err))
		return
	}

	elapsed := time.Since(start)
	now := time.Now()
	job.transition(JobCompleted)
	job.CompletedAt = &now
	job.ProcessingMS = elapsed.Milliseconds()

	p.mu.Lock()
	p.stats.CompletedJobs++
	p.totalProcessed += elapsed.Seconds()
	p.updateStatsLocked()
	needCheckpoint := p.stats.CompletedJobs-p.lastCheckpoint >= p.checkpointInterval()
	if needCheckpoint {
		p.saveCheckpointLocked()
	}
	p.mu.Unlock()

	p.captureSnapshot(jobCtx)
	jobLogger.Info("job completed",
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "job_completed"),
	)
}

// handleFailure applies the failure policy in order: permanent skip for
// repeat offenders and unrecoverable error patterns, retry with exponential
// backoff while attempts remain, otherwise terminal failure.
func (p *Pool) handleFailure(ctx context.Context, logger *slog.Logger, job *Job, jobErr error) {
	job.Attempts++
	job.LastError = jobErr.Error()

	switch {
	case p.shouldSkipPermanently(job, jobErr):
		now := time.Now()
		job.transition(JobSkipped)
		job.CompletedAt = &now

		reason := fmt.Sprintf("permanently skipped after %d failures: %s", job.Attempts, job.LastError)
		if err := p.store.UpdateStatus(ctx, job.TrackID, library.StatusSkipped, reason); err != nil {
			logging.WarnWithContext(logger, "failed to persist skip", "status_update_failed",
				logging.Error(err))
		}

		p.mu.Lock()
		p.stats.SkippedJobs++
		p.updateStatsLocked()
		p.mu.Unlock()

		logging.WarnWithContext(logger, "job permanently skipped", "job_skipped",
			logging.Int("attempts", job.Attempts),
			logging.String(logging.FieldErrorHint, job.LastError),
			logging.String(logging.FieldImpact, "track excluded from future queue passes"),
		)

	case job.Attempts < job.MaxAttempts:
		job.transition(JobRetrying)
		delay := retryDelay(job.Attempts)

		if err := p.store.UpdateStatus(ctx, job.TrackID, library.StatusError, job.LastError); err != nil {
			logging.WarnWithContext(logger, "failed to persist error status", "status_update_failed",
				logging.Error(err))
		}

		p.mu.Lock()
		p.stats.RetryingJobs++
		p.updateStatsLocked()
		p.mu.Unlock()

		p.scheduler.schedule(job, time.Now().Add(delay))
		logging.WarnWithContext(logger, "job failed, retry scheduled", "job_retry_scheduled",
			logging.Int("attempt", job.Attempts),
			logging.Duration("delay", delay),
			logging.String(logging.FieldErrorHint, job.LastError),
		)

	default:
		now := time.Now()
		job.transition(JobFailed)
		job.CompletedAt = &now

		if err := p.store.UpdateStatus(ctx, job.TrackID, library.StatusError, job.LastError); err != nil {
			logging.WarnWithContext(logger, "failed to persist error status", "status_update_failed",
				logging.Error(err))
		}

		p.mu.Lock()
		p.stats.FailedJobs++
		p.updateStatsLocked()
		p.mu.Unlock()

		p.captureSnapshot(ctx)
		logging.ErrorWithContext(logger, "job failed permanently", "job_failed",
			logging.Int("attempts", job.Attempts),
			logging.String(logging.FieldErrorHint, job.LastError),
		)
	}
}

// shouldSkipPermanently decides whether a failed job is worth retrying.
// Files that keep failing or whose error indicates a missing, unreadable,
// or corrupt source will never succeed, so they are skipped outright.
func (p *Pool) shouldSkipPermanently(job *Job, err error) bool {
	if job.Attempts >= permanentSkipAttempts {
		return true
	}
	if analysis.IsFatal(err) {
		return true
	}
	return analysis.LooksFatal(job.LastError)
}

// retryDelay returns the exponential backoff before attempt n is retried,
// capped at five minutes.
func retryDelay(attempts int) time.Duration {
	if attempts >= 9 {
		return 300 * time.Second
	}
	delay := 1 << attempts
	if delay > 300 {
		delay = 300
	}
	return time.Duration(delay) * time.Second
}
