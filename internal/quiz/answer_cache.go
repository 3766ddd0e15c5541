package quiz

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// AnswerCache keeps question id -> correct option index with a TTL, so a
// burst of votes on one poll costs a single store read. Concurrent misses
// for the same question are collapsed with singleflight.
type AnswerCache struct {
	store QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedAnswer
}

type cachedAnswer struct {
	correctIndex int
	expiresAt    time.Time
}

func NewAnswerCache(store QuestionStore, ttl time.Duration) *AnswerCache {
	return &AnswerCache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[int64]cachedAnswer),
	}
}

// CorrectIndex returns the correct option for a question. ok is false when
// the question no longer exists.
func (c *AnswerCache) CorrectIndex(ctx context.Context, questionID int64) (int, bool, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[questionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.correctIndex, true, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.FormatInt(questionID, 10), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[questionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.correctIndex, nil
		}
		c.mu.RUnlock()

		question, err := c.store.GetQuestion(ctx, questionID)
		if err != nil {
			return 0, err
		}
		if question == nil {
			return -1, nil
		}

		c.mu.Lock()
		c.cache[questionID] = cachedAnswer{
			correctIndex: question.CorrectIndex,
			expiresAt:    now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return question.CorrectIndex, nil
	})
	if err != nil {
		return 0, false, err
	}
	idx := result.(int)
	if idx < 0 {
		return 0, false, nil
	}
	return idx, true, nil
}

func (c *AnswerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
