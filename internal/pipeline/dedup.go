package pipeline

import (
	"context"
	"sync"
	"time"
)

// Dedup is the in-memory seen-trade set. With a positive ttl it retains
// identities only for that window, bounding memory on long runs; a
// non-positive ttl retains forever. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // identity -> first admitted
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given retention window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Admit returns true the first time identity is presented and false on every
// repeat within the retention window. Admitted identities are recorded
// immediately, so two concurrent callers never both get true.
func (d *Dedup) Admit(_ context.Context, identity string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if admitted, ok := d.seen[identity]; ok {
		if d.ttl <= 0 || now.Sub(admitted) < d.ttl {
			return false, nil
		}
	}
	d.seen[identity] = now
	return true, nil
}

// Cleanup drops identities older than the retention window. No-op when
// retention is unbounded.
func (d *Dedup) Cleanup() {
	if d.ttl <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Run sweeps expired identities periodically until ctx is cancelled. Only
// needed for long runs with a bounded retention window.
func (d *Dedup) Run(ctx context.Context) error {
	if d.ttl <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(d.ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Cleanup()
		}
	}
}

// Len returns the number of retained identities.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
