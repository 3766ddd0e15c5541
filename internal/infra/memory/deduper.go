package memory

import (
	"context"
	"sync"
	"time"
)

// Deduper is an in-process seen-set for vote notifications. Entries expire
// lazily so the map does not grow without bound across long uptimes.
type Deduper struct {
	ttl   time.Duration
	clock func() time.Time

	mu   sync.Mutex
	seen map[dedupKey]time.Time
}

type dedupKey struct {
	pollID string
	userID int64
}

func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{
		ttl:   ttl,
		clock: time.Now,
		seen:  make(map[dedupKey]time.Time),
	}
}

func (d *Deduper) Seen(_ context.Context, pollID string, userID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	for key, expires := range d.seen {
		if expires.Before(now) {
			delete(d.seen, key)
		}
	}

	key := dedupKey{pollID: pollID, userID: userID}
	if _, ok := d.seen[key]; ok {
		return true, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return false, nil
}

func (d *Deduper) Forget(_ context.Context, pollID string, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, dedupKey{pollID: pollID, userID: userID})
	return nil
}
