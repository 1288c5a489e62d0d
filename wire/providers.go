package wire

import (
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/brightspin-gaming/slot-engine/config"
	"github.com/brightspin-gaming/slot-engine/db/redis"
	"github.com/brightspin-gaming/slot-engine/events/kafka"
	"github.com/brightspin-gaming/slot-engine/logging"
	"github.com/brightspin-gaming/slot-engine/pkg/jackpot"
	"github.com/brightspin-gaming/slot-engine/server"
	"github.com/brightspin-gaming/slot-engine/session"
	"github.com/brightspin-gaming/slot-engine/wallet"
)

// ProvideLogger provides a zerolog.Logger. Production always logs JSON
// regardless of the configured format.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	logCfg := cfg.Logging
	if cfg.IsProduction() {
		logCfg.Format = "json"
	}
	return logging.New(logCfg)
}

// ProvideRedisClient provides a Redis client
func ProvideRedisClient(cfg *config.Config) (*goredis.Client, error) {
	return redis.New(cfg.Redis)
}

// ProvideJackpotStore provides the Redis-backed jackpot store
func ProvideJackpotStore(client *goredis.Client) jackpot.Store {
	return jackpot.NewRedisStore(client)
}

// ProvideJackpotService provides the jackpot service with write-behind
// persistence; local pool movement is mirrored to Kafka when a producer is
// configured
func ProvideJackpotService(cfg *config.Config, store jackpot.Store, producer *kafka.Producer, logger zerolog.Logger) *jackpot.Service {
	svcCfg := jackpot.ServiceConfig{
		FlushInterval: cfg.Session.JackpotFlushInterval,
		Store:         store,
		Logger:        logger,
	}
	if producer != nil {
		svcCfg.Publish = func(update jackpot.Update) {
			producer.PublishPoolUpdate(kafka.PoolUpdateEvent{
				GameID:    update.GameID,
				Amount:    update.Amount,
				Award:     update.Award,
				SpinID:    update.SpinID,
				UpdatedAt: update.Timestamp,
			})
		}
	}
	return jackpot.NewService(svcCfg)
}

// ProvideWalletGateway provides the HTTP wallet gateway
func ProvideWalletGateway(cfg *config.Config, logger zerolog.Logger) wallet.Gateway {
	return wallet.NewHTTPGateway(wallet.HTTPGatewayConfig{
		BaseURL: cfg.Wallet.BaseURL,
		Timeout: cfg.Wallet.Timeout,
		Logger:  logger,
	})
}

// ProvideAuditStore provides the Redis-backed spin audit store
func ProvideAuditStore(client *goredis.Client) session.AuditStore {
	return session.NewRedisAudit(client)
}

// ProvideEventPublisher provides the Kafka spin event publisher
func ProvideEventPublisher(cfg *config.Config, logger zerolog.Logger) *kafka.Producer {
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Logger:  logger,
	})
}

// ProvideLedger provides the session ledger
func ProvideLedger(
	cfg *config.Config,
	logger zerolog.Logger,
	gateway wallet.Gateway,
	jackpots *jackpot.Service,
	audit session.AuditStore,
	producer *kafka.Producer,
) *session.Ledger {
	ledgerCfg := session.LedgerConfig{
		Logger:        logger,
		Wallet:        gateway,
		Jackpots:      jackpots,
		Audit:         audit,
		WalletTimeout: cfg.Session.WalletTimeout,
		IdleTimeout:   cfg.Session.IdleTimeout,
	}
	if producer != nil {
		ledgerCfg.Events = producer
	}
	return session.NewLedger(ledgerCfg)
}

// ProvideServerOptions provides server options
func ProvideServerOptions(
	cfg *config.Config,
	logger zerolog.Logger,
	ledger *session.Ledger,
	jackpots *jackpot.Service,
) server.Options {
	return server.Options{
		Config:   cfg,
		Logger:   logger,
		Ledger:   ledger,
		Jackpots: jackpots,
	}
}

// ProvideApp provides the main application
func ProvideApp(opts server.Options) *server.App {
	return server.New(opts)
}

// ConfigSet is the wire provider set for configuration
var ConfigSet = wire.NewSet(
	config.Load,
)

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// RedisSet is the wire provider set for Redis
var RedisSet = wire.NewSet(
	ProvideRedisClient,
)

// JackpotSet is the wire provider set for jackpot persistence and service
var JackpotSet = wire.NewSet(
	ProvideJackpotStore,
	ProvideJackpotService,
)

// LedgerSet is the wire provider set for the session ledger and its
// collaborators
var LedgerSet = wire.NewSet(
	ProvideWalletGateway,
	ProvideAuditStore,
	ProvideEventPublisher,
	ProvideLedger,
)

// ServerSet is the wire provider set for server
var ServerSet = wire.NewSet(
	ProvideServerOptions,
	ProvideApp,
)

// FullSet includes all providers needed to run the engine
var FullSet = wire.NewSet(
	LoggingSet,
	RedisSet,
	JackpotSet,
	LedgerSet,
	ServerSet,
)
