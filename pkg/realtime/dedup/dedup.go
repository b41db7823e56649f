// Package dedup guarantees at-most-once presentation of an event id within
// a rolling window. The guarantee is process-local: the same event arriving
// over both the push channel and the live event bus is surfaced once, but
// suppression does not extend across devices.
package dedup

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	// DefaultWindow is how long a seen id stays suppressed.
	DefaultWindow = 5 * time.Minute
	// DefaultSweepInterval is how often expired records are evicted.
	DefaultSweepInterval = time.Minute
)

// Deduplicator tracks which event ids have already been processed. Safe for
// concurrent use.
type Deduplicator struct {
	seen *cache.Cache
}

// New builds a deduplicator with the given suppression window and eviction
// sweep interval. Non-positive values fall back to the defaults.
func New(window, sweep time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	return &Deduplicator{seen: cache.New(window, sweep)}
}

// ShouldProcess reports whether id is being seen for the first time within
// the window, recording it as seen when so. Every later call for the same id
// returns false until the record expires.
func (d *Deduplicator) ShouldProcess(id string) bool {
	// Add fails when a live entry already exists, which makes the
	// check-and-record a single operation under the cache lock.
	return d.seen.Add(id, time.Now(), cache.DefaultExpiration) == nil
}

// Len returns the number of records currently held, expired ones included
// until the next sweep.
func (d *Deduplicator) Len() int {
	return d.seen.ItemCount()
}

// Reset drops all records.
func (d *Deduplicator) Reset() {
	d.seen.Flush()
}
