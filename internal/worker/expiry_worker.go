package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/model"
)

var (
	ErrSweepInProgress = errors.New("expiry sweep already running")
	ErrSweepLockHeld   = errors.New("expiry sweep lock held by another instance")
)

// Sweeper completes overdue sessions.
type Sweeper interface {
	ExpireOverdue(ctx context.Context) (model.ExpiryReport, error)
}

// ExpiryWorker runs the sweeper on a fixed interval. At most one tick runs at
// a time in this process, and, with a Locker, across all processes. A tick
// that would overlap is skipped, not queued.
type ExpiryWorker struct {
	sweeper  Sweeper
	locker   Locker
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	running sync.Mutex
	ticks   sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpiryWorker creates a new ExpiryWorker. locker may be nil.
func NewExpiryWorker(sweeper Sweeper, locker Locker, interval, timeout time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		timeout:  timeout,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled or Stop is called. It sweeps once
// immediately to catch up on sessions that expired while no worker ran.
func (w *ExpiryWorker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel, w.done = cancel, done
	w.mu.Unlock()
	defer close(done)
	defer cancel()

	w.log.Info().Dur("interval", w.interval).Dur("timeout", w.timeout).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.launch(ctx)
	for {
		select {
		case <-ctx.Done():
			w.ticks.Wait()
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.launch(ctx)
		}
	}
}

func (w *ExpiryWorker) launch(ctx context.Context) {
	w.ticks.Add(1)
	go func() {
		defer w.ticks.Done()
		_, _ = w.RunOnce(ctx)
	}()
}

// Stop cancels the loop and waits for any in-flight tick to finish.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce performs a single sweep under the tick timeout. Errors are logged
// here and also returned for callers that want them.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (model.ExpiryReport, error) {
	if !w.running.TryLock() {
		metrics.SweepRuns.WithLabelValues(metrics.OutcomeOverlap).Inc()
		w.log.Warn().Msg("Previous sweep still running; skipping tick")
		return model.ExpiryReport{}, ErrSweepInProgress
	}
	defer w.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if w.locker != nil {
		release, ok, err := w.locker.TryAcquire(ctx)
		if err != nil {
			metrics.SweepRuns.WithLabelValues(metrics.OutcomeLockFailed).Inc()
			w.log.Error().Err(err).Msg("Failed to acquire sweep lock")
			return model.ExpiryReport{}, err
		}
		if !ok {
			metrics.SweepRuns.WithLabelValues(metrics.OutcomeLockHeld).Inc()
			w.log.Debug().Msg("Sweep lock held elsewhere; skipping tick")
			return model.ExpiryReport{}, ErrSweepLockHeld
		}
		defer release()
	}

	start := time.Now()
	report, err := w.sweeper.ExpireOverdue(ctx)
	elapsed := time.Since(start)
	metrics.SweepDuration.Observe(elapsed.Seconds())
	metrics.SweepSessions.WithLabelValues("expired").Add(float64(report.Expired))
	metrics.SweepSessions.WithLabelValues("raced").Add(float64(report.Raced))
	metrics.SweepSessions.WithLabelValues("skipped").Add(float64(report.Skipped))
	metrics.SweepSessions.WithLabelValues("failed").Add(float64(report.Failed))

	if err != nil {
		metrics.SweepRuns.WithLabelValues(metrics.OutcomeError).Inc()
		w.log.Error().Err(err).Int("expired", report.Expired).Msg("Expiry sweep failed; retrying next tick")
		return report, err
	}
	metrics.SweepRuns.WithLabelValues(metrics.OutcomeOK).Inc()

	ev := w.log.Debug()
	if report.Expired > 0 || report.Failed > 0 {
		ev = w.log.Info()
	}
	ev.Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("raced", report.Raced).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("took", elapsed).
		Msg("Expiry sweep finished")
	return report, nil
}
