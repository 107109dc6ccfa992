package cache

import (
	"context"
	"time"

	klog "kewangan/internal/log"
)

// Cache is a keyed store whose entries may expire.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	// DeleteFunc removes every entry whose key matches and returns how many
	// were removed.
	DeleteFunc(match func(K) bool) int
	Purge()
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans registered caches.
type Janitor struct {
	caches []Cleaner
	logger *klog.Logger
}

func NewJanitor(logger *klog.Logger, caches ...Cleaner) *Janitor {
	if logger == nil {
		logger = klog.Named(klog.ComponentCache)
	}
	return &Janitor{caches: caches, logger: logger}
}

// Register adds a cache to be cleaned.
func (j *Janitor) Register(c Cleaner) {
	j.caches = append(j.caches, c)
}

// Sweep cleans every registered cache once.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.DebugContext(ctx, "Removed expired cache entries", klog.FieldCount, n)
			}
		}
	}
}
