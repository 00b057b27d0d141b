// internal/worker/release_sweeper.go
package worker

import (
	"context"
	"time"

	"settlement-service/internal/usecase"

	"go.uber.org/zap"
)

// sweepBatchSize bounds how many due entries one pass picks up. The
// sweep is idempotent per entry, so a truncated pass just leaves work
// for the next tick.
const sweepBatchSize = 500

type ReleaseSweeper struct {
	escrowUsecase *usecase.EscrowUsecase
	interval      time.Duration
	logger        *zap.Logger
	stopChan      chan bool
}

func NewReleaseSweeper(
	escrowUsecase *usecase.EscrowUsecase,
	interval time.Duration,
	logger *zap.Logger,
) *ReleaseSweeper {
	return &ReleaseSweeper{
		escrowUsecase: escrowUsecase,
		interval:      interval,
		logger:        logger,
		stopChan:      make(chan bool),
	}
}

func (rs *ReleaseSweeper) Start(ctx context.Context) {
	rs.logger.Info("Starting release sweeper", zap.Duration("interval", rs.interval))

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rs.sweepOnce(ctx)

		case <-rs.stopChan:
			rs.logger.Info("Stopping release sweeper")
			return

		case <-ctx.Done():
			rs.logger.Info("Context cancelled, stopping release sweeper")
			return
		}
	}
}

func (rs *ReleaseSweeper) sweepOnce(ctx context.Context) {
	released, err := rs.escrowUsecase.ReleaseDue(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		rs.logger.Error("Auto-release sweep failed",
			zap.Error(err),
			zap.Int("released_before_failure", released))
		return
	}
	if released > 0 {
		rs.logger.Info("Auto-release sweep completed", zap.Int("released", released))
	}
}

func (rs *ReleaseSweeper) Stop() {
	close(rs.stopChan)
}
