package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/metrics"
)

const defaultSweepInterval = 10 * time.Minute

// ResetTokenSweeper periodically clears expired password reset tokens.
type ResetTokenSweeper struct {
	accounts *account.Store
	interval time.Duration
	nowFn    func() time.Time
}

// NewResetTokenSweeper constructs a sweeper; a non-positive interval uses the default.
func NewResetTokenSweeper(accounts *account.Store, interval time.Duration, nowFn func() time.Time) *ResetTokenSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &ResetTokenSweeper{accounts: accounts, interval: interval, nowFn: nowFn}
}

// Start runs the sweeper in the background until ctx is cancelled.
func (s *ResetTokenSweeper) Start(ctx context.Context) {
	if s == nil || s.accounts == nil {
		return
	}
	go s.run(ctx)
}

func (s *ResetTokenSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ResetTokenSweeper) sweep(ctx context.Context) int64 {
	cleared, errClear := s.accounts.ClearExpiredResetTokens(ctx, s.nowFn())
	if errClear != nil {
		if ctx.Err() == nil {
			log.WithError(errClear).Warn("reset token sweep failed")
		}
		return 0
	}
	if cleared > 0 {
		metrics.ResetTokensCleared.Add(float64(cleared))
		log.WithField("cleared", cleared).Info("cleared expired reset tokens")
	}
	return cleared
}
