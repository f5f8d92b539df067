package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper runs the eviction pass on a fixed interval, independent of
// connection activity, so TTL expiry and quota pressure are handled even
// while the bridge is idle.
type Sweeper struct {
	store    *Store
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper creates a sweeper for the store.
func NewSweeper(store *Store, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
	}
}

// Run sweeps until ctx is cancelled. The eviction pass itself holds the
// store lock; the wait between passes does not.
func (sw *Sweeper) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	sw.log.Info().Dur("interval", sw.interval).Msg("sweeper started")

	// One pass up front so leftovers from a previous run are reclaimed
	// without waiting a full interval.
	sw.sweep()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			sw.sweep()
		}
	}
}

func (sw *Sweeper) sweep() {
	stats, err := sw.store.Evict(0, 0)
	if err != nil {
		sw.log.Warn().Err(err).Msg("sweep failed")
		return
	}
	if stats.Removed > 0 {
		sw.log.Info().
			Int("removed", stats.Removed).
			Int64("removedBytes", stats.RemovedBytes).
			Msg("sweep evicted expired resources")
		return
	}
	sw.log.Debug().Msg("sweep found nothing to evict")
}
