package sweep

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"upkeep/services/signoff"
)

// HintStore caches the derived status of an occurrence so list-heavy readers
// can skip classification. Entries expire on their own; the database row
// stays the source of truth.
type HintStore interface {
	SetStatus(ctx context.Context, signOffID string, status signoff.Status) error
}

const hintTTL = 48 * time.Hour

type redisHints struct {
	client *redis.Client
}

func NewRedisHints(client *redis.Client) HintStore {
	return &redisHints{client: client}
}

func hintKey(signOffID string) string {
	return "upkeep:signoff:status:" + signOffID
}

func (h *redisHints) SetStatus(ctx context.Context, signOffID string, status signoff.Status) error {
	return h.client.Set(ctx, hintKey(signOffID), string(status), hintTTL).Err()
}
