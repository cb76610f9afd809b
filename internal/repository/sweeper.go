package repository

import (
	"CatalogAuth/internal/logging"
	"context"
	"time"
)

type purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RunSweeper purges expired records every interval until ctx is done. It
// stands in for the TTL eviction stores like Redis do on their own.
func RunSweeper(ctx context.Context, store purger, interval time.Duration, log logging.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purged, err := store.PurgeExpired(ctx, now)
			if err != nil {
				log.Warn(ctx, "ошибка очистки просроченных токенов", "error", err)
				continue
			}
			if purged > 0 {
				log.Debug(ctx, "expired refresh records purged", "count", purged)
			}
		}
	}
}
