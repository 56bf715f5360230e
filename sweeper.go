package portalauth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper purges dead token records every TokenStore.SweepInterval until
// ctx is cancelled. Purge errors are logged and the loop continues. It
// always returns nil after cancellation so it can run under an errgroup.
func (e *Engine) RunSweeper(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	ticker := time.NewTicker(e.config.TokenStore.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single purge and returns the number of records removed.
func (e *Engine) SweepOnce(ctx context.Context) int {
	opCtx, cancel := context.WithTimeout(ctx, e.config.TokenStore.OpTimeout)
	defer cancel()

	n, err := e.tokens.PurgeExpired(opCtx, e.now())
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricTokensPurged, uint64(n))
	}
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("token sweep failed", zap.Int("purged", n), zap.Error(err))
		}
		return n
	}
	if n > 0 {
		e.logger.Debug("token sweep", zap.Int("purged", n))
	}
	return n
}
