/*
scheduler.go - Automated points expiry scheduler

PURPOSE:
  Periodically expires earned points whose expiry date has passed, across
  every active loyalty program.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run calls ExpireAll with the current time; entries already flagged
    are skipped, so overlapping or repeated runs are harmless
  - Results are logged; member failures are counted, not fatal

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpirationScheduler(loyaltySvc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerExpiry endpoint (manual expiry)
  - loyalty/sweep.go: ExpireAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/hotel-loyalty-engine/loyalty"
	"go.uber.org/zap"
)

// Expirer runs the expiry sweep. Implemented by loyalty.Service.
type Expirer interface {
	ExpireAll(ctx context.Context, asOf time.Time) (loyalty.SweepResult, error)
}

// ExpirationScheduler handles automated points expiry.
type ExpirationScheduler struct {
	Expirer       Expirer
	CheckInterval time.Duration
	Enabled       bool
	Clock         func() time.Time
	Logger        *zap.Logger

	ticker *time.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirationScheduler creates a new scheduler.
func NewExpirationScheduler(expirer Expirer, logger *zap.Logger) *ExpirationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirationScheduler{
		Expirer:       expirer,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Clock:         func() time.Time { return time.Now().UTC() },
		Logger:        logger.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *ExpirationScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.Logger.Info("expiry scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("expiry scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and cancels an in-flight run.
func (s *ExpirationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.cancel()
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("expiry scheduler stopped")
	}
}

func (s *ExpirationScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(s.ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// RunOnce performs a single expiry sweep as of now.
func (s *ExpirationScheduler) RunOnce(ctx context.Context) (loyalty.SweepResult, error) {
	asOf := s.Clock()
	res, err := s.Expirer.ExpireAll(ctx, asOf)
	if err != nil {
		s.Logger.Error("expiry sweep failed", zap.Time("as_of", asOf), zap.Error(err))
		return res, err
	}
	s.Logger.Info("expiry sweep complete",
		zap.Time("as_of", asOf),
		zap.Int("members", res.Members),
		zap.Int("expired", res.Changed),
		zap.Int64("points", res.Points),
		zap.Int("failed", res.Failed))
	return res, nil
}
