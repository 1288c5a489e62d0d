package jackpot

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// Store persists pool values across process restarts.
type Store interface {
	// Load returns the persisted value for a game; found is false when the
	// pool has never been saved.
	Load(ctx context.Context, gameID string) (amount decimal.Decimal, found bool, err error)
	Save(ctx context.Context, gameID string, amount decimal.Decimal) error
}

const redisKeyPrefix = "slotengine:jackpot:"

// RedisStore keeps pool values in redis so every instance serving a game
// restarts from the same pool.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, gameID string) (decimal.Decimal, bool, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+gameID).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load jackpot %s: %w", gameID, err)
	}
	amount, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt jackpot value for %s: %w", gameID, err)
	}
	return amount, true, nil
}

func (s *RedisStore) Save(ctx context.Context, gameID string, amount decimal.Decimal) error {
	if err := s.client.Set(ctx, redisKeyPrefix+gameID, amount.String(), 0).Err(); err != nil {
		return fmt.Errorf("save jackpot %s: %w", gameID, err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and the offline simulator.
type MemoryStore struct {
	mu    sync.Mutex
	pools map[string]decimal.Decimal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[string]decimal.Decimal)}
}

func (s *MemoryStore) Load(_ context.Context, gameID string) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.pools[gameID]
	return amount, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, gameID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[gameID] = amount
	return nil
}
