package booking

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires appointments abandoned before payment.
type Sweeper struct {
	engine    *Engine
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewSweeper(engine *Engine, logger *slog.Logger, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{engine: engine, logger: logger, interval: interval, batchSize: batchSize}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep drains full batches so a backlog clears within one tick.
func (s *Sweeper) sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		expired, err := s.engine.ExpireStalePending(ctx, s.batchSize)
		if err != nil {
			s.logger.Error("pending expiry sweep failed", "err", err)
			return total
		}
		total += len(expired)
		if len(expired) < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info("pending expiry sweep done", "expired", total)
	}
	return total
}
