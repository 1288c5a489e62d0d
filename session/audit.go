package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brightspin-gaming/slot-engine/game"
)

// AuditStore persists every spin result for replay and reconciliation.
// Persistence is best-effort from the spin path: a failed write is logged
// but never fails the spin, the wallet write already happened.
type AuditStore interface {
	SaveSpin(ctx context.Context, result *game.SpinResult) error
	Spins(ctx context.Context, sessionID string, limit int64) ([]*game.SpinResult, error)
}

const (
	auditKeyPrefix = "slotengine:spins:"
	auditMaxSpins  = 500
	auditTTL       = 48 * time.Hour
)

// RedisAudit keeps a capped per-session list of spin results in redis.
type RedisAudit struct {
	client *redis.Client
}

func NewRedisAudit(client *redis.Client) *RedisAudit {
	return &RedisAudit{client: client}
}

func (a *RedisAudit) SaveSpin(ctx context.Context, result *game.SpinResult) error {
	data, err := result.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal spin %s: %w", result.SpinID, err)
	}

	key := auditKeyPrefix + result.SessionID
	pipe := a.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, auditMaxSpins-1)
	pipe.Expire(ctx, key, auditTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist spin %s: %w", result.SpinID, err)
	}
	return nil
}

func (a *RedisAudit) Spins(ctx context.Context, sessionID string, limit int64) ([]*game.SpinResult, error) {
	if limit <= 0 || limit > auditMaxSpins {
		limit = auditMaxSpins
	}
	raw, err := a.client.LRange(ctx, auditKeyPrefix+sessionID, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load spins for %s: %w", sessionID, err)
	}

	results := make([]*game.SpinResult, 0, len(raw))
	for _, item := range raw {
		sr, err := game.SpinResultFromJSON([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("corrupt spin record for %s: %w", sessionID, err)
		}
		results = append(results, sr)
	}
	return results, nil
}

// MemoryAudit is an in-process AuditStore for tests and the simulator.
type MemoryAudit struct {
	mu    sync.Mutex
	spins map[string][]*game.SpinResult
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{spins: make(map[string][]*game.SpinResult)}
}

func (a *MemoryAudit) SaveSpin(_ context.Context, result *game.SpinResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spins[result.SessionID] = append([]*game.SpinResult{result}, a.spins[result.SessionID]...)
	return nil
}

func (a *MemoryAudit) Spins(_ context.Context, sessionID string, limit int64) ([]*game.SpinResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	spins := a.spins[sessionID]
	if limit > 0 && int64(len(spins)) > limit {
		spins = spins[:limit]
	}
	out := make([]*game.SpinResult, len(spins))
	copy(out, spins)
	return out, nil
}
