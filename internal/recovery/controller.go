package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cadence/internal/config"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/monitor"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateMonitoring State = "monitoring"
	StateRecovering State = "recovering"
	StateFailed     State = "failed"
	StateDisabled   State = "disabled"
)

// Attempt records one recovery attempt, successful or not.
type Attempt struct {
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Duration     float64   `json:"recovery_time,omitempty"`
}

// RestartFunc restarts the processing pipeline. The controller treats a
// nil error as a successful recovery.
type RestartFunc func(ctx context.Context) error

// historyCap bounds the in-memory attempt ring.
const historyCap = 50

// Controller watches for stalled analysis and restarts the pipeline with
// exponential backoff between attempts. Repeated failures escalate: past
// the consecutive-failure limit the controller stands down until an
// operator resets it.
type Controller struct {
	cfg     *config.Config
	store   *library.Store
	monitor *monitor.Monitor
	restart RestartFunc
	logger  *slog.Logger

	mu                  sync.Mutex
	state               State
	attempts            []Attempt
	consecutiveFailures int
	lastAttempt         time.Time
	backoffMultiplier   float64
	running             bool
	cancel              context.CancelFunc
	wg                  sync.WaitGroup

	attemptMu sync.Mutex
}

// New constructs a Controller. The restart callback is required for
// recovery to do anything; without one every attempt fails.
func New(cfg *config.Config, store *library.Store, mon *monitor.Monitor, restart RestartFunc, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		cfg:               cfg,
		store:             store,
		monitor:           mon,
		restart:           restart,
		logger:            logging.NewComponentLogger(logger, "recovery"),
		state:             StateIdle,
		backoffMultiplier: 1,
	}
}

// StartMonitoring launches the background decision loop. Returns false if
// auto-recovery is disabled or the loop is already running.
func (c *Controller) StartMonitoring() bool {
	if !c.cfg.Recovery.Enabled {
		c.mu.Lock()
		c.state = StateDisabled
		c.mu.Unlock()
		c.logger.Info("auto-recovery is disabled")
		return false
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("recovery monitoring already running")
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.state = StateMonitoring
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx)
	c.logger.Info("auto-recovery monitoring started",
		logging.Int("check_interval_seconds", c.cfg.Recovery.CheckInterval),
		logging.Int("max_consecutive_failures", c.cfg.Recovery.MaxConsecutiveFailures),
	)
	return true
}

// StopMonitoring stops the decision loop, waiting up to ten seconds for it
// to exit. Safe to call when not running.
func (c *Controller) StopMonitoring() bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return true
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.logger.Warn("recovery loop did not stop within timeout")
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.logger.Info("auto-recovery monitoring stopped")
	return true
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.checkInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.shouldAttemptRecovery(ctx) {
			c.attemptRecovery(ctx, "analysis stalled; automatic restart")
		}
	}
}

// shouldAttemptRecovery applies the decision policy: never while already
// recovering or escalated, always when tracks are stuck in analyzing,
// otherwise only when the monitor reports a stall and the backoff window
// has elapsed.
func (c *Controller) shouldAttemptRecovery(ctx context.Context) bool {
	c.mu.Lock()
	state := c.state
	failures := c.consecutiveFailures
	lastAttempt := c.lastAttempt
	backoff := c.backoffWindowLocked()
	c.mu.Unlock()

	if state == StateRecovering {
		return false
	}
	if failures >= c.cfg.Recovery.MaxConsecutiveFailures {
		c.logger.Warn("max consecutive recovery failures exceeded",
			logging.Int("failures", failures),
			logging.Alert("manual intervention required"),
		)
		return false
	}
	if failures >= c.cfg.Recovery.RequireManualAfter {
		return false
	}

	cutoff := time.Now().Add(-time.Duration(c.cfg.Recovery.StuckThresholdMinutes) * time.Minute)
	if stuck, err := c.store.StuckAnalyzing(ctx, cutoff); err != nil {
		logging.WarnWithContext(c.logger, "failed to check for stuck tracks", "stuck_check_failed",
			logging.Error(err))
	} else if stuck > 0 {
		c.logger.Info("stuck tracks detected",
			logging.Int("stuck", stuck),
			logging.String(logging.FieldEventType, "stuck_tracks_detected"),
		)
		return true
	}

	if !c.monitor.IsStalled(ctx) {
		return false
	}
	if !lastAttempt.IsZero() && time.Since(lastAttempt) < backoff {
		return false
	}
	return true
}

// attemptRecovery runs the restart callback and records the outcome.
// Success resets the failure count and backoff; failure doubles the
// backoff multiplier up to the configured ceiling.
func (c *Controller) attemptRecovery(ctx context.Context, reason string) bool {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()

	c.setState(StateRecovering)
	c.logger.Info("attempting recovery",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "recovery_started"),
	)

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, c.recoveryTimeout())
	err := c.performRestart(attemptCtx)
	cancel()
	elapsed := time.Since(start)

	attempt := Attempt{
		Timestamp: start,
		Reason:    reason,
		Success:   err == nil,
		Duration:  elapsed.Seconds(),
	}
	if err != nil {
		attempt.ErrorMessage = err.Error()
	}

	c.mu.Lock()
	c.attempts = append(c.attempts, attempt)
	if len(c.attempts) > historyCap {
		c.attempts = c.attempts[len(c.attempts)-historyCap:]
	}
	c.lastAttempt = start

	if err == nil {
		c.consecutiveFailures = 0
		c.backoffMultiplier = 1
		c.state = StateMonitoring
		c.mu.Unlock()
		c.logger.Info("recovery successful",
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "recovery_succeeded"),
		)
		return true
	}

	c.consecutiveFailures++
	maxMultiplier := c.maxBackoffMultiplierLocked()
	c.backoffMultiplier = c.backoffMultiplier * 2
	if c.backoffMultiplier > maxMultiplier {
		c.backoffMultiplier = maxMultiplier
	}
	failures := c.consecutiveFailures
	if c.running {
		c.state = StateMonitoring
	} else {
		c.state = StateFailed
	}
	c.mu.Unlock()

	logging.ErrorWithContext(c.logger, "recovery failed", "recovery_failed",
		logging.Error(err),
		logging.Int("consecutive_failures", failures),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldImpact, "analysis remains stalled"),
	)
	return false
}

func (c *Controller) performRestart(ctx context.Context) error {
	if c.restart == nil {
		return errNoRestartCallback
	}
	return c.restart(ctx)
}

// ForceRecovery triggers an immediate attempt, bypassing the stall and
// backoff checks. Intended for operator use over IPC.
func (c *Controller) ForceRecovery(ctx context.Context) bool {
	c.logger.Info("manual recovery requested")
	return c.attemptRecovery(ctx, "manual recovery requested")
}

// ResetFailureCount clears the escalation state. Unconditional: operators
// use it to re-arm auto-recovery after fixing the underlying problem.
func (c *Controller) ResetFailureCount() {
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.backoffMultiplier = 1
	c.mu.Unlock()
	c.logger.Info("failure count reset by manual intervention")
}

// Report is the recovery status served over IPC.
type Report struct {
	State                      State      `json:"status"`
	Enabled                    bool       `json:"enabled"`
	ConsecutiveFailures        int        `json:"consecutive_failures"`
	BackoffMultiplier          float64    `json:"backoff_multiplier"`
	NextRecoveryAvailable      *time.Time `json:"next_recovery_available,omitempty"`
	AttemptCount               int        `json:"recovery_attempts_count"`
	LastAttempt                *time.Time `json:"last_recovery_attempt,omitempty"`
	RequiresManualIntervention bool       `json:"requires_manual_intervention"`
	MonitoringActive           bool       `json:"monitoring_active"`
}

// Status reports the controller's current state and backoff position.
func (c *Controller) Status() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := Report{
		State:                      c.state,
		Enabled:                    c.cfg.Recovery.Enabled,
		ConsecutiveFailures:        c.consecutiveFailures,
		BackoffMultiplier:          c.backoffMultiplier,
		AttemptCount:               len(c.attempts),
		RequiresManualIntervention: c.consecutiveFailures >= c.cfg.Recovery.RequireManualAfter,
		MonitoringActive:           c.running,
	}
	if !c.lastAttempt.IsZero() {
		last := c.lastAttempt
		report.LastAttempt = &last
		next := last.Add(c.backoffWindowLocked())
		if next.After(time.Now()) {
			report.NextRecoveryAvailable = &next
		}
	}
	return report
}

// History returns up to limit most recent attempts, oldest first.
func (c *Controller) History(limit int) []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.attempts) {
		limit = len(c.attempts)
	}
	out := make([]Attempt, limit)
	copy(out, c.attempts[len(c.attempts)-limit:])
	return out
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) backoffWindowLocked() time.Duration {
	base := c.cfg.Recovery.BaseBackoffMinutes
	if base <= 0 {
		base = 1
	}
	return time.Duration(c.backoffMultiplier * float64(base) * float64(time.Minute))
}

func (c *Controller) maxBackoffMultiplierLocked() float64 {
	base := c.cfg.Recovery.BaseBackoffMinutes
	if base <= 0 {
		base = 1
	}
	max := c.cfg.Recovery.MaxBackoffMinutes
	if max < base {
		max = base
	}
	return float64(max) / float64(base)
}

func (c *Controller) checkInterval() time.Duration {
	if c.cfg.Recovery.CheckInterval > 0 {
		return time.Duration(c.cfg.Recovery.CheckInterval) * time.Second
	}
	return time.Minute
}

func (c *Controller) recoveryTimeout() time.Duration {
	if c.cfg.Recovery.RecoveryTimeoutMinutes > 0 {
		return time.Duration(c.cfg.Recovery.RecoveryTimeoutMinutes) * time.Minute
	}
	return 10 * time.Minute
}
