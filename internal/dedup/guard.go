// Package dedup keeps a bounded, insertion-ordered record of recently ingested
// provider message IDs.
package dedup

import (
	"context"
	"sync"
	"time"

	"rfp-mail-ingest/internal/logging"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultMax      = 2000
	DefaultKeep     = 1000
	DefaultInterval = time.Hour
)

// Guard is a size-capped ordered set. It is a best-effort, in-process safeguard
// against duplicate deliveries, not a durable idempotency record.
//
// Between trims the set may grow past max; at twice max the oldest entries are
// evicted on insert.
type Guard struct {
	mu   sync.Mutex
	max  int
	keep int
	ids  *simplelru.LRU[string, struct{}]
}

// NewGuard creates a Guard that trims to the newest keep IDs once it holds more than max
func NewGuard(max, keep int) *Guard {
	if max <= 0 {
		max = DefaultMax
	}
	if keep <= 0 || keep > max {
		keep = max / 2
	}
	ids, err := simplelru.NewLRU[string, struct{}](2*max, nil)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Guard{
		max:  max,
		keep: keep,
		ids:  ids,
	}
}

// Seen reports whether id was recorded
func (g *Guard) Seen(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ids.Contains(id)
}

// Add records id. Re-adding an existing id does not change its position.
func (g *Guard) Add(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(id)
}

// Seed records ids oldest first, e.g. from persisted history at startup
func (g *Guard) Seed(ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.addLocked(id)
	}
	g.trimLocked()
}

// Len returns the number of recorded IDs
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ids.Len()
}

// Trim drops all but the newest keep IDs when the guard holds more than max.
// It returns the number of IDs dropped.
func (g *Guard) Trim() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trimLocked()
}

// Run trims the guard every interval until ctx is done
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Trim(); n > 0 {
				logging.Log.Infof("Cleaned up processed messages set, dropped %d entries", n)
			}
		}
	}
}

// addLocked skips known IDs so that a repeat never refreshes recency
func (g *Guard) addLocked(id string) {
	if g.ids.Contains(id) {
		return
	}
	g.ids.Add(id, struct{}{})
}

func (g *Guard) trimLocked() int {
	if g.ids.Len() <= g.max {
		return 0
	}
	dropped := 0
	for g.ids.Len() > g.keep {
		if _, _, ok := g.ids.RemoveOldest(); !ok {
			break
		}
		dropped++
	}
	return dropped
}
