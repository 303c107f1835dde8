package cache

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically sweeps expired entries out of a cache. The cache does
// not require sweeping for correctness (reads enforce expiry), the janitor
// only bounds memory held by entries that are never read again.
type Janitor struct {
	cache  *Cache
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewJanitor creates a janitor sweeping cache on the given cron schedule
// (standard five-field expressions, e.g. "*/5 * * * *").
func NewJanitor(c *Cache, schedule string, logger zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		cache:  c,
		cron:   cron.New(),
		logger: logger,
	}

	_, err := j.cron.AddFunc(schedule, j.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	return j, nil
}

// Start begins scheduled sweeps in a background goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Debug().Msg("Cache janitor started")
}

// Stop halts scheduled sweeps. Stop does not wait for a running sweep.
func (j *Janitor) Stop() {
	j.cron.Stop()
	j.logger.Debug().Msg("Cache janitor stopped")
}

func (j *Janitor) sweep() {
	removed := j.cache.Sweep()
	if removed > 0 {
		j.logger.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
}
