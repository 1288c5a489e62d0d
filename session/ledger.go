package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	apperrors "github.com/brightspin-gaming/slot-engine/errors"
	"github.com/brightspin-gaming/slot-engine/game"
	"github.com/brightspin-gaming/slot-engine/logging"
	"github.com/brightspin-gaming/slot-engine/pkg/jackpot"
	"github.com/brightspin-gaming/slot-engine/wallet"
)

// EventPublisher receives spin and jackpot events for downstream consumers.
// Publishing is fire-and-forget from the spin path.
type EventPublisher interface {
	PublishSpin(ctx context.Context, result *game.SpinResult)
	PublishJackpotWin(ctx context.Context, result *game.SpinResult)
}

// gameRuntime bundles what a registered game needs at spin time.
type gameRuntime struct {
	def  *game.Definition
	gen  *game.Generator
	eval *game.Evaluator
}

// LedgerConfig configures the session ledger.
type LedgerConfig struct {
	Wallet   wallet.Gateway
	Jackpots *jackpot.Service
	Logger   zerolog.Logger

	// Audit and Events are optional; a nil store skips spin persistence
	// and a nil publisher disables event emission.
	Audit  AuditStore
	Events EventPublisher

	// WalletTimeout bounds each wallet gateway call.
	WalletTimeout time.Duration
	// IdleTimeout is how long a session may sit without a spin before the
	// sweeper ends it.
	IdleTimeout time.Duration
}

// Ledger owns every active session: it serializes spins per session,
// enforces balance invariants and writes every balance change through the
// wallet gateway. One ledger serves all games in the process.
type Ledger struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	active   map[string]string // userID|gameID -> sessionID
	games    map[string]*gameRuntime

	wallet        wallet.Gateway
	jackpots      *jackpot.Service
	audit         AuditStore
	events        EventPublisher
	logger        zerolog.Logger
	walletTimeout time.Duration
	idleTimeout   time.Duration
}

// NewLedger creates a ledger. Games are registered separately so a config
// problem in one game definition surfaces per game at startup.
func NewLedger(cfg LedgerConfig) *Ledger {
	walletTimeout := cfg.WalletTimeout
	if walletTimeout <= 0 {
		walletTimeout = 5 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Ledger{
		sessions:      make(map[string]*Session),
		active:        make(map[string]string),
		games:         make(map[string]*gameRuntime),
		wallet:        cfg.Wallet,
		jackpots:      cfg.Jackpots,
		audit:         cfg.Audit,
		events:        cfg.Events,
		logger:        logging.WithComponent(cfg.Logger, "session_ledger"),
		walletTimeout: walletTimeout,
		idleTimeout:   idleTimeout,
	}
}

// RegisterGame validates a definition and makes the game spinnable. A game
// with a jackpot configuration also gets its pool registered.
func (l *Ledger) RegisterGame(ctx context.Context, def *game.Definition) error {
	if err := def.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrConfigError, "invalid game definition")
	}

	rt := &gameRuntime{
		def:  def,
		gen:  game.NewGenerator(def),
		eval: game.NewEvaluator(def),
	}

	l.mu.Lock()
	l.games[def.GameID] = rt
	l.mu.Unlock()

	if l.jackpots != nil && (def.Jackpot.ContributionRate > 0 || def.Jackpot.HitProbability > 0) {
		l.jackpots.RegisterPool(ctx, jackpot.NewPool(def.GameID, def.Jackpot))
	}

	gameLogger := logging.WithGameID(l.logger, def.GameID)
	gameLogger.Info().
		Int("paylines", len(def.Paylines)).
		Float64("rtp", def.RTP).
		Msg("game registered")
	return nil
}

// RegisterSeededGame is RegisterGame with a deterministic generator, used
// for audit replay and the simulator.
func (l *Ledger) RegisterSeededGame(ctx context.Context, def *game.Definition, seed int64) error {
	if err := l.RegisterGame(ctx, def); err != nil {
		return err
	}
	l.mu.Lock()
	l.games[def.GameID].gen = game.NewSeededGenerator(def, seed)
	l.mu.Unlock()
	return nil
}

// GameDefinition returns a registered game's definition.
func (l *Ledger) GameDefinition(gameID string) (*game.Definition, error) {
	rt, err := l.game(gameID)
	if err != nil {
		return nil, err
	}
	return rt.def, nil
}

// GameIDs lists the registered games.
func (l *Ledger) GameIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.Keys(l.games)
}

func (l *Ledger) game(gameID string) (*gameRuntime, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rt, ok := l.games[gameID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrGameNotFound, "game not found")
	}
	return rt, nil
}

func activeKey(userID, gameID string) string {
	return userID + "|" + gameID
}

// Open starts a session for a (user, game) pair. At most one active
// session may exist per pair; the starting balance comes straight from the
// wallet gateway.
func (l *Ledger) Open(ctx context.Context, userID, gameID string, currency wallet.Currency) (*Session, error) {
	if _, err := l.game(gameID); err != nil {
		return nil, err
	}

	key := activeKey(userID, gameID)
	l.mu.RLock()
	_, exists := l.active[key]
	l.mu.RUnlock()
	if exists {
		return nil, apperrors.New(apperrors.ErrDuplicateSession, "an active session already exists for this game")
	}

	walletCtx, cancel := context.WithTimeout(ctx, l.walletTimeout)
	defer cancel()
	balance, err := l.wallet.GetBalance(walletCtx, userID, currency)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrWalletUnavailable, "wallet gateway unavailable")
	}

	now := time.Now()
	s := &Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		GameID:          gameID,
		Currency:        currency,
		State:           StateActive,
		StartingBalance: balance,
		Balance:         balance,
		TotalBet:        decimal.Zero,
		TotalWin:        decimal.Zero,
		CreatedAt:       now,
		LastActivity:    now,
	}

	l.mu.Lock()
	if _, exists := l.active[key]; exists {
		l.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrDuplicateSession, "an active session already exists for this game")
	}
	l.sessions[s.ID] = s
	l.active[key] = s.ID
	l.mu.Unlock()

	l.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", userID).
		Str("game_id", gameID).
		Str("currency", currency.String()).
		Str("balance", balance.String()).
		Msg("session opened")
	return s, nil
}

// Get returns a session by ID.
func (l *Ledger) Get(sessionID string) (*Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[sessionID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrSessionNotFound, "session not found")
	}
	return s, nil
}

// Spin runs one complete spin: validate, debit, generate, evaluate, credit.
// The session lock is held for the whole sequence, so spins on one session
// are strictly serial; a spin either completes fully or leaves the balance
// untouched.
func (l *Ledger) Spin(ctx context.Context, sessionID string, bet decimal.Decimal) (*game.SpinResult, decimal.Decimal, error) {
	s, err := l.Get(sessionID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	rt, err := l.game(s.GameID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateEnded {
		return nil, s.Balance, apperrors.New(apperrors.ErrSessionEnded, "session has ended")
	}

	freeSpin := s.FreeSpinsRemaining > 0
	stake := bet
	charged := bet
	if freeSpin {
		// Free spins replay the triggering stake without charging it.
		stake = s.FreeSpinBet
		charged = decimal.Zero
	} else {
		if err := l.validateBet(rt.def, bet); err != nil {
			return nil, s.Balance, err
		}
		if bet.GreaterThan(s.Balance) {
			return nil, s.Balance, apperrors.New(apperrors.ErrInsufficientBalance, "insufficient balance")
		}
	}

	spinID := uuid.NewString()
	preSpinBalance := s.Balance
	spinLogger := logging.WithSessionID(l.logger, s.ID)

	// Debit: in-memory first, then write through to the wallet. Any wallet
	// failure rolls the in-memory debit straight back.
	if charged.IsPositive() {
		s.Balance = s.Balance.Sub(charged)
		newBalance, err := l.applyDelta(ctx, s, charged.Neg(), "bet:"+spinID)
		if err != nil {
			s.Balance = preSpinBalance
			if stderrors.Is(err, wallet.ErrInsufficientFunds) {
				return nil, s.Balance, apperrors.New(apperrors.ErrInsufficientBalance, "insufficient balance")
			}
			return nil, s.Balance, apperrors.Wrap(err, apperrors.ErrWalletUnavailable, "wallet debit failed")
		}
		// The wallet's answer is authoritative.
		s.Balance = newBalance
	}

	outcome := rt.gen.Generate()
	winlines, lineWin := rt.eval.Evaluate(outcome.Grid, stake)
	features := game.DetectFeatures(rt.def, outcome.Grid)

	if freeSpin && s.FreeSpinMultiplier > 1 && lineWin.IsPositive() {
		mult := decimal.NewFromInt(int64(s.FreeSpinMultiplier))
		lineWin = lineWin.Mul(mult)
		for i := range winlines {
			winlines[i].WinAmount = winlines[i].WinAmount.Mul(mult)
		}
	}
	totalWin := lineWin

	if l.jackpots != nil && charged.IsPositive() {
		l.jackpots.Contribute(s.GameID, spinID, charged)
	}

	jackpotWin := decimal.Zero
	if l.jackpots != nil && outcome.JackpotEligible && totalWin.IsPositive() {
		jackpotWin = l.jackpots.TryAward(ctx, s.GameID, spinID)
		totalWin = totalWin.Add(jackpotWin)
	}

	// Credit. A wallet failure here compensates the debit that already
	// landed, restoring the pre-spin balance on both sides.
	if totalWin.IsPositive() {
		newBalance, err := l.applyDelta(ctx, s, totalWin, "win:"+spinID)
		if err != nil {
			l.compensateDebit(ctx, s, charged, spinID)
			s.Balance = preSpinBalance
			return nil, s.Balance, apperrors.Wrap(err, apperrors.ErrWalletUnavailable, "wallet credit failed")
		}
		s.Balance = newBalance
	}

	s.TotalBet = s.TotalBet.Add(charged)
	s.TotalWin = s.TotalWin.Add(totalWin)
	s.SpinCount++
	s.LastActivity = time.Now()

	if freeSpin {
		s.FreeSpinsRemaining--
	}
	if features.FreeSpinsAwarded > 0 {
		s.FreeSpinsRemaining += features.FreeSpinsAwarded
		s.FreeSpinMultiplier = features.FreeSpinMultiplier
		s.FreeSpinBet = stake
	}

	result := &game.SpinResult{
		SpinID:           spinID,
		GameID:           s.GameID,
		SessionID:        s.ID,
		Grid:             outcome.Grid.Clone(),
		Winlines:         winlines,
		TotalWin:         totalWin,
		TotalBet:         charged,
		Multiplier:       game.DisplayMultiplier(totalWin, stake),
		ScatterCount:     features.ScatterCount,
		WildCount:        features.WildCount,
		FreeSpinsAwarded: features.FreeSpinsAwarded,
		FreeSpin:         freeSpin,
		JackpotHit:       jackpotWin.IsPositive(),
		JackpotWin:       jackpotWin,
		CreatedAt:        time.Now(),
	}

	if l.audit != nil {
		if err := l.audit.SaveSpin(ctx, result); err != nil {
			spinLogger.Error().Err(err).Str("spin_id", spinID).Msg("failed to persist spin result")
		}
	}
	if l.events != nil {
		l.events.PublishSpin(ctx, result)
		if result.JackpotHit {
			l.events.PublishJackpotWin(ctx, result)
		}
	}

	spinLogger.Debug().
		Str("spin_id", spinID).
		Str("bet", charged.String()).
		Str("win", totalWin.String()).
		Str("balance", s.Balance.String()).
		Bool("free_spin", freeSpin).
		Msg("spin settled")

	return result, s.Balance, nil
}

// SpinHistory returns a session's audited spins, newest first.
func (l *Ledger) SpinHistory(ctx context.Context, sessionID string, limit int64) ([]*game.SpinResult, error) {
	if _, err := l.Get(sessionID); err != nil {
		return nil, err
	}
	if l.audit == nil {
		return nil, nil
	}
	results, err := l.audit.Spins(ctx, sessionID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRedisError, "failed to load spin history")
	}
	return results, nil
}

// End marks a session ended and releases its (user, game) slot. Ending an
// already-ended session is a no-op; the balance was written through on
// every spin, so there is nothing left to flush beyond a reconcile check.
func (l *Ledger) End(ctx context.Context, sessionID string) (*Session, error) {
	s, err := l.Get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == StateEnded {
		return s, nil
	}
	s.State = StateEnded
	s.EndedAt = time.Now()

	l.mu.Lock()
	delete(l.active, activeKey(s.UserID, s.GameID))
	l.mu.Unlock()

	// Reconcile the cache against the wallet; a mismatch means a
	// compensation failed mid-session and needs operator attention.
	walletCtx, cancel := context.WithTimeout(ctx, l.walletTimeout)
	defer cancel()
	walletBalance, err := l.wallet.GetBalance(walletCtx, s.UserID, s.Currency)
	if err != nil {
		l.logger.Warn().Err(err).Str("session_id", s.ID).
			Msg("could not reconcile balance at session end")
	} else if !walletBalance.Equal(s.Balance) {
		l.logger.Error().
			Str("session_id", s.ID).
			Str("cached", s.Balance.String()).
			Str("wallet", walletBalance.String()).
			Msg("balance drift detected at session end")
		s.Balance = walletBalance
	}

	l.logger.Info().
		Str("session_id", s.ID).
		Int("spins", s.SpinCount).
		Str("total_bet", s.TotalBet.String()).
		Str("total_win", s.TotalWin.String()).
		Str("final_balance", s.Balance.String()).
		Msg("session ended")
	return s, nil
}

// Sweep ends sessions idle longer than the idle timeout and drops ended
// sessions older than twice the timeout. Returns how many were ended.
func (l *Ledger) Sweep(ctx context.Context) int {
	l.mu.RLock()
	sessions := lo.Values(l.sessions)
	l.mu.RUnlock()

	cutoff := time.Now().Add(-l.idleTimeout)
	dropCutoff := time.Now().Add(-2 * l.idleTimeout)
	ended := 0
	for _, s := range sessions {
		snap := s.Snapshot()
		switch {
		case snap.State == StateActive.String() && snap.LastActivity.Before(cutoff):
			if _, err := l.End(ctx, snap.ID); err == nil {
				ended++
			}
		case snap.State == StateEnded.String() && snap.LastActivity.Before(dropCutoff):
			l.mu.Lock()
			delete(l.sessions, snap.ID)
			l.mu.Unlock()
		}
	}
	if ended > 0 {
		l.logger.Info().Int("count", ended).Msg("swept idle sessions")
	}
	return ended
}

// RunSweeper sweeps on an interval until the context is done.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(ctx)
		}
	}
}

func (l *Ledger) validateBet(def *game.Definition, bet decimal.Decimal) error {
	if !bet.IsPositive() {
		return apperrors.New(apperrors.ErrGameLogicError, "bet must be positive")
	}
	if def.MinBet > 0 && bet.LessThan(decimal.NewFromFloat(def.MinBet)) {
		return apperrors.NewWithDebug(apperrors.ErrGameLogicError, "bet below game minimum",
			"bet "+bet.String()+", minimum "+decimal.NewFromFloat(def.MinBet).String())
	}
	if def.MaxBet > 0 && bet.GreaterThan(decimal.NewFromFloat(def.MaxBet)) {
		return apperrors.NewWithDebug(apperrors.ErrGameLogicError, "bet above game maximum",
			"bet "+bet.String()+", maximum "+decimal.NewFromFloat(def.MaxBet).String())
	}
	return nil
}

func (l *Ledger) applyDelta(ctx context.Context, s *Session, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	walletCtx, cancel := context.WithTimeout(ctx, l.walletTimeout)
	defer cancel()
	return l.wallet.ApplyDelta(walletCtx, s.UserID, s.Currency, delta, reason)
}

// compensateDebit undoes a debit that landed on the wallet after a later
// step failed. A failed compensation is the one place currency can drift;
// it is logged at error level for reconciliation against the audit trail.
func (l *Ledger) compensateDebit(ctx context.Context, s *Session, charged decimal.Decimal, spinID string) {
	if !charged.IsPositive() {
		return
	}
	if _, err := l.applyDelta(ctx, s, charged, "bet-rollback:"+spinID); err != nil {
		l.logger.Error().Err(err).
			Str("session_id", s.ID).
			Str("spin_id", spinID).
			Str("amount", charged.String()).
			Msg("compensating credit failed, wallet balance needs manual reconciliation")
	}
}
