package jackpot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DefaultFlushInterval is the default interval for persisting dirty pools
// and broadcasting buffered updates.
const DefaultFlushInterval = 2 * time.Second

// ServiceConfig configures the jackpot service.
type ServiceConfig struct {
	// FlushInterval controls how often dirty pools are persisted and
	// buffered updates are flushed to listeners.
	FlushInterval time.Duration

	// Store is optional; without it pools live only in memory.
	Store Store

	// Logger is optional; if zero value, a no-op logger is used.
	Logger zerolog.Logger

	// Publish is optional; when set it receives every locally-originated
	// update so it can be mirrored to sibling instances. Remote updates
	// fed through HandleRemoteUpdate are never republished.
	Publish func(Update)
}

// Service owns every game's jackpot pool: registration, contributions,
// awards, write-behind persistence and update broadcasting. Awards persist
// synchronously; contributions ride the periodic flush.
type Service struct {
	mu     sync.RWMutex
	pools  map[string]*Pool
	buffer map[string]Update

	broad    *Broadcaster
	store    Store
	publish  func(Update)
	logger   zerolog.Logger
	interval time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService creates a jackpot service and starts its flush loop.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	s := &Service{
		pools:    make(map[string]*Pool),
		buffer:   make(map[string]Update),
		broad:    NewBroadcaster(128),
		store:    cfg.Store,
		publish:  cfg.Publish,
		logger:   cfg.Logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
	s.start()
	return s
}

// RegisterPool adds a game's pool and restores its persisted value when the
// store has one.
func (s *Service) RegisterPool(ctx context.Context, pool *Pool) {
	if s.store != nil {
		amount, found, err := s.store.Load(ctx, pool.GameID())
		if err != nil {
			s.logger.Warn().Err(err).Str("game_id", pool.GameID()).
				Msg("failed to restore jackpot pool, starting from seed")
		} else if found {
			pool.Restore(amount)
		}
	}

	s.mu.Lock()
	s.pools[pool.GameID()] = pool
	s.mu.Unlock()

	s.logger.Info().Str("game_id", pool.GameID()).
		Str("amount", pool.Amount().String()).
		Msg("jackpot pool registered")
}

// Pool returns a game's pool.
func (s *Service) Pool(gameID string) (*Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[gameID]
	return pool, ok
}

// Amounts returns the current value of every registered pool.
func (s *Service) Amounts() map[string]decimal.Decimal {
	s.mu.RLock()
	pools := lo.Values(s.pools)
	s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(pools))
	for _, p := range pools {
		out[p.GameID()] = p.Amount()
	}
	return out
}

// Contribute grows a game's pool by its configured fraction of the bet and
// buffers an update for listeners. Persistence happens on the next flush.
func (s *Service) Contribute(gameID, spinID string, bet decimal.Decimal) {
	pool, ok := s.Pool(gameID)
	if !ok {
		return
	}
	amount := pool.Contribute(bet)
	update := Update{
		GameID:    gameID,
		Amount:    amount,
		Timestamp: time.Now(),
		SpinID:    spinID,
	}
	s.bufferUpdate(update)
	if s.publish != nil {
		s.publish(update)
	}
}

// TryAward draws the configured fraction from a game's pool. A zero return
// means no pool is registered or the pool is too small to award. Awards are
// persisted and broadcast immediately rather than waiting for the flush.
func (s *Service) TryAward(ctx context.Context, gameID, spinID string) decimal.Decimal {
	pool, ok := s.Pool(gameID)
	if !ok {
		return decimal.Zero
	}
	award := pool.TryAward()
	if !award.IsPositive() {
		return decimal.Zero
	}

	remaining, _ := pool.snapshot(true)
	if s.store != nil {
		if err := s.store.Save(ctx, gameID, remaining); err != nil {
			s.logger.Error().Err(err).Str("game_id", gameID).
				Msg("failed to persist jackpot pool after award")
		}
	}

	update := Update{
		GameID:    gameID,
		Amount:    remaining,
		Award:     award,
		Timestamp: time.Now(),
		SpinID:    spinID,
	}
	s.bufferUpdate(update)
	s.broad.Send(update)
	if s.publish != nil {
		s.publish(update)
	}

	s.logger.Info().Str("game_id", gameID).Str("spin_id", spinID).
		Str("award", award.String()).Str("remaining", remaining.String()).
		Msg("jackpot awarded")
	return award
}

// HandleRemoteUpdate buffers a pool update received from another instance
// (e.g. via the Kafka consumer) so local listeners see it on the next flush.
// Stale updates are dropped.
func (s *Service) HandleRemoteUpdate(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.buffer[update.GameID]; ok && update.Timestamp.Before(existing.Timestamp) {
		return
	}
	s.buffer[update.GameID] = update
}

// Listen returns a channel receiving flushed updates plus a cancel function.
func (s *Service) Listen(ctx context.Context) (<-chan Update, context.CancelFunc) {
	return s.broad.Listen(ctx)
}

// Stop halts the flush loop after one final persist.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopChan)
		s.persistDirty(context.Background())
	})
}

func (s *Service) bufferUpdate(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer[update.GameID] = update
}

func (s *Service) start() {
	s.ticker = time.NewTicker(s.interval)
	go s.loop()
}

func (s *Service) loop() {
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.ticker.C:
			s.flush()
		}
	}
}

// flush persists dirty pools, then broadcasts buffered updates.
func (s *Service) flush() {
	s.persistDirty(context.Background())

	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	updates := lo.Values(s.buffer)
	s.buffer = make(map[string]Update)
	s.mu.Unlock()

	for _, u := range updates {
		s.broad.Send(u)
	}
	if s.logger.GetLevel() <= zerolog.DebugLevel {
		s.logger.Debug().Int("count", len(updates)).Msg("flushed jackpot updates")
	}
}

func (s *Service) persistDirty(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.RLock()
	pools := lo.Values(s.pools)
	s.mu.RUnlock()

	for _, pool := range pools {
		amount, dirty := pool.snapshot(true)
		if !dirty {
			continue
		}
		if err := s.store.Save(ctx, pool.GameID(), amount); err != nil {
			s.logger.Error().Err(err).Str("game_id", pool.GameID()).
				Msg("failed to persist jackpot pool")
		}
	}
}
