package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizbot/internal/domain"
)

// Deduper records votes as vote:{pollID}:{userID} keys with a TTL. SETNX makes
// mark-and-check a single atomic round trip, which is what keeps scoring
// exactly-once when the platform re-delivers a notification.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

func (d *Deduper) Seen(ctx context.Context, pollID string, userID int64) (bool, error) {
	set, err := d.client.SetNX(ctx, d.key(pollID, userID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: vote dedup: %v", domain.ErrStorage, err)
	}
	return !set, nil
}

func (d *Deduper) Forget(ctx context.Context, pollID string, userID int64) error {
	if err := d.client.Del(ctx, d.key(pollID, userID)).Err(); err != nil {
		return fmt.Errorf("%w: vote dedup release: %v", domain.ErrStorage, err)
	}
	return nil
}

func (d *Deduper) key(pollID string, userID int64) string {
	return "vote:" + pollID + ":" + strconv.FormatInt(userID, 10)
}
