package cache

import (
	"time"

	"github.com/rs/zerolog"
)

// Cache is a keyed store whose entries may disappear at any time
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries eagerly
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps expired entries out of registered caches
type Janitor struct {
	caches []Cleaner
	logger zerolog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewJanitor creates a janitor with no caches registered
func NewJanitor(logger zerolog.Logger) *Janitor {
	return &Janitor{
		logger: logger.With().Str("component", "cache_janitor").Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Register adds a cache to the sweep set. Call before Start.
func (j *Janitor) Register(c Cleaner) {
	j.caches = append(j.caches, c)
}

// Start begins sweeping every interval until Stop is called
func (j *Janitor) Start(interval time.Duration) {
	go j.run(interval)
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := 0
			for _, c := range j.caches {
				removed += c.CleanExpired()
			}
			if removed > 0 {
				j.logger.Debug().Int("removed", removed).Msg("Expired cache entries removed")
			}
		case <-j.stopCh:
			return
		}
	}
}

// Stop halts the sweep loop and waits for it to exit
func (j *Janitor) Stop() {
	close(j.stopCh)
	<-j.doneCh
}
