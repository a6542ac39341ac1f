package usecase

import (
	"context"
	"time"

	"sustainflow-service/internal/domain/repository"
	"sustainflow-service/pkg/logger"
	"sustainflow-service/pkg/metrics"

	"github.com/juju/clock"
)

// QRSweeper expires active tokens whose validity window has passed.
// Validate already expires lazily; the sweep keeps stored state honest for listings.
type QRSweeper struct {
	tokens   repository.QRTokenRepository
	clock    clock.Clock
	interval time.Duration
	metrics  *metrics.Metrics
	logger   logger.Logger
}

func NewQRSweeper(tokens repository.QRTokenRepository, clk clock.Clock, interval time.Duration, metrics *metrics.Metrics, logger logger.Logger) *QRSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &QRSweeper{
		tokens:   tokens,
		clock:    clk,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// SweepOnce runs a single pass and returns the number of expired tokens
func (s *QRSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.tokens.ExpireStale(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.QRTokensSwept.Add(float64(n))
		s.logger.Info("Expired stale qr tokens", "count", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled
func (s *QRSweeper) Run(ctx context.Context) {
	timer := s.clock.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("QR sweeper stopped")
			return
		case <-timer.Chan():
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Error sweeping qr tokens", "error", err)
			}
			timer.Reset(s.interval)
		}
	}
}
