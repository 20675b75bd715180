package jobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-dm-backend/internal/store"
)

// Job names as they appear in logs.
const (
	PurgeIdempotencyJob = "purge-idempotency"
	ValueLogGCJob       = "badger-value-log-gc"
)

var idempotencyPurged = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "dm_idempotency_purged_total",
	Help: "Expired idempotency records removed by the purge job.",
})

func init() {
	prometheus.MustRegister(idempotencyPurged)
}

// PurgeIdempotency returns a task that deletes idempotency records expired at
// now(). Failures are logged and retried on the next tick.
func PurgeIdempotency(st store.IdempotencyStore, now func() time.Time, l zerolog.Logger) func(context.Context) {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) {
		n, err := st.PurgeExpiredIdempotency(ctx, now().UTC())
		if err != nil {
			l.Warn().Err(err).Str("job", PurgeIdempotencyJob).Msg("purge failed")
			return
		}
		idempotencyPurged.Add(float64(n))
		if n > 0 {
			l.Info().Int64("removed", n).Str("job", PurgeIdempotencyJob).Msg("expired idempotency records purged")
		}
	}
}

// GarbageCollector is implemented by stores that need periodic compaction.
type GarbageCollector interface {
	RunGC() error
}

// CollectGarbage returns a task that runs gc once per tick.
func CollectGarbage(gc GarbageCollector, l zerolog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		if err := gc.RunGC(); err != nil {
			l.Warn().Err(err).Str("job", ValueLogGCJob).Msg("value log gc failed")
		}
	}
}

// Register schedules the maintenance jobs that apply to st. The purge runs
// on purgeCron; value-log GC is added only when st implements
// GarbageCollector.
func Register(s *Scheduler, st store.IdempotencyStore, purgeCron string, l zerolog.Logger) error {
	if err := s.Cron(PurgeIdempotencyJob, purgeCron, PurgeIdempotency(st, time.Now, l)); err != nil {
		return err
	}
	if gc, ok := st.(GarbageCollector); ok {
		if err := s.Every(ValueLogGCJob, 10*time.Minute, CollectGarbage(gc, l)); err != nil {
			return err
		}
	}
	return nil
}
