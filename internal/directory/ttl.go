package directory

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredPairSweeper deletes pair records whose ttl has elapsed. Stores that
// expire records on their own do not need one.
type ExpiredPairSweeper interface {
	DeleteExpiredPairRecords(ctx context.Context) (int64, error)
}

// StartTTLWorker runs a background goroutine that periodically evicts idle
// rooms and, when pairs is non-nil, sweeps expired pair records.
func StartTTLWorker(ctx context.Context, d *Directory, pairs ExpiredPairSweeper, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "idle_ttl", idleTTL)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, d, pairs, idleTTL)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, d *Directory, pairs ExpiredPairSweeper, idleTTL time.Duration) {
	if evicted := d.EvictIdle(ctx, idleTTL); evicted > 0 {
		slog.Info("TTL worker evicted idle rooms", "count", evicted, "resident", len(d.ResidentRooms()))
	}

	if pairs == nil {
		return
	}
	if deleted, err := pairs.DeleteExpiredPairRecords(ctx); err != nil {
		slog.Error("TTL worker failed to delete expired pair records", "error", err)
	} else if deleted > 0 {
		slog.Info("TTL worker deleted expired pair records", "count", deleted)
	}
}
