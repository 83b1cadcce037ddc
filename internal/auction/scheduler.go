package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artexchange/auction-engine/internal/metrics"
)

// Scheduler runs the ended-auction and payment-expiry sweeps on a fixed
// interval after an initial delay. Ticks are single-flight: if a sweep is
// still running when the next tick fires, the tick is skipped rather than
// stacked. Tests call RunOnce directly instead of starting the loop.
type Scheduler struct {
	svc          *Service
	interval     time.Duration
	initialDelay time.Duration

	running sync.Mutex

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a scheduler around svc. Non-positive durations fall
// back to the production defaults of a 60s interval and a 30s delay.
func NewScheduler(svc *Service, interval, initialDelay time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if initialDelay <= 0 {
		initialDelay = 30 * time.Second
	}
	return &Scheduler{
		svc:          svc,
		interval:     interval,
		initialDelay: initialDelay,
	}
}

// Start launches the sweep loop in a goroutine. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)

	slog.Info("sweep scheduler started",
		"interval", s.interval, "initial_delay", s.initialDelay)
}

// Stop signals the loop to exit and waits for the in-flight sweep, if
// any, to finish. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	slog.Info("sweep scheduler stopped")
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)

	delay := time.NewTimer(s.initialDelay)
	defer delay.Stop()
	select {
	case <-delay.C:
	case <-stop:
		return
	}

	s.tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stop:
			return
		}
	}
}

// tick runs one sweep pass unless the previous pass is still running.
func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		slog.Warn("sweep still running, skipping tick")
		metrics.SweepSkipped.Inc()
		return
	}
	defer s.running.Unlock()

	if err := s.RunOnce(context.Background()); err != nil {
		slog.Error("sweep pass failed", "err", err)
	}
}

// RunOnce executes both sweeps synchronously and returns the first error
// encountered. A failed auction sweep does not prevent the payment sweep
// from running.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	settled, auctionErr := s.svc.SweepEndedAuctions(ctx)
	metrics.SweepDuration.WithLabelValues("auctions").Observe(time.Since(start).Seconds())

	start = time.Now()
	expired, paymentErr := s.svc.SweepExpiredPayments(ctx)
	metrics.SweepDuration.WithLabelValues("payments").Observe(time.Since(start).Seconds())

	if settled > 0 || expired > 0 {
		slog.Info("sweep pass complete", "settled", settled, "expired", expired)
	}
	if auctionErr != nil {
		return auctionErr
	}
	return paymentErr
}
