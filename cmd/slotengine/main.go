package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/brightspin-gaming/slot-engine/config"
	"github.com/brightspin-gaming/slot-engine/events/kafka"
	"github.com/brightspin-gaming/slot-engine/game"
	"github.com/brightspin-gaming/slot-engine/logging"
	"github.com/brightspin-gaming/slot-engine/pkg/jackpot"
	"github.com/brightspin-gaming/slot-engine/session"
	"github.com/brightspin-gaming/slot-engine/wallet"
	"github.com/brightspin-gaming/slot-engine/wire"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "slotengine",
		Short: "Slot outcome engine with per-session wallet ledger",
		Long: `slotengine runs the slot outcome engine: weighted reel generation,
payline evaluation, progressive jackpots, and a per-session wallet ledger.

Example:
  slotengine serve --config config/config-development.yaml
  slotengine simulate --game games/golden-reef.yaml --spins 100000`,
		Version: version,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var (
		configFile string
		configDir  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `serve starts the engine. With --config it reads that exact file;
otherwise it resolves config-<env>.yaml inside --config-dir from the
ENV / APP_ENV environment variables (development by default).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if configFile != "" {
				cfg, err = config.Load(configFile)
			} else {
				cfg, err = config.LoadByEnv(configDir)
			}
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to an explicit config file")
	cmd.Flags().StringVar(&configDir, "config-dir", "config", "Directory holding config-<env>.yaml files")
	return cmd
}

func runServer(cfg *config.Config) error {
	logger := wire.ProvideLogger(cfg)

	redisClient, err := wire.ProvideRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	producer := wire.ProvideEventPublisher(cfg, logger)
	jackpots := wire.ProvideJackpotService(cfg, wire.ProvideJackpotStore(redisClient), producer, logger)
	ledger := wire.ProvideLedger(cfg, logger,
		wire.ProvideWalletGateway(cfg, logger),
		jackpots,
		wire.ProvideAuditStore(redisClient),
		producer,
	)

	defs, err := game.LoadDefinitionsDir(cfg.GamesDir)
	if err != nil {
		return fmt.Errorf("load game definitions: %w", err)
	}
	ctx := context.Background()
	for _, def := range defs {
		if err := ledger.RegisterGame(ctx, def); err != nil {
			return fmt.Errorf("register game %s: %w", def.GameID, err)
		}
		logger.Info().Str("game_id", def.GameID).Str("name", def.GameName).Msg("game registered")
	}

	// Pool movement settled on sibling instances flows back through Kafka.
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		Logger:        logger,
	}, func(event kafka.PoolUpdateEvent) {
		jackpots.HandleRemoteUpdate(jackpot.Update{
			GameID:    event.GameID,
			Amount:    event.Amount,
			Award:     event.Award,
			SpinID:    event.SpinID,
			Timestamp: event.UpdatedAt,
		})
	})
	if consumer != nil {
		consumer.Start()
	}

	app := wire.ProvideApp(wire.ProvideServerOptions(cfg, logger, ledger, jackpots))
	app.UseCommonMiddlewares()
	app.RegisterRoutes()

	app.OnShutdown(func() {
		if consumer != nil {
			if err := consumer.Stop(); err != nil {
				logger.Error().Err(err).Msg("stopping Kafka consumer")
			}
		}
		if producer != nil {
			producer.Close()
		}
		jackpots.Stop()
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("closing Redis client")
		}
	})

	return app.Run()
}

func newSimulateCmd() *cobra.Command {
	var (
		gameFile string
		spins    int
		seed     int64
		bet      float64
		balance  float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an offline spin simulation against a game definition",
		Long: `simulate spins a game definition against in-memory wallet and jackpot
backends and prints observed return-to-player statistics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(gameFile, spins, seed, bet, balance)
		},
	}

	cmd.Flags().StringVarP(&gameFile, "game", "g", "", "Path to game definition YAML (required)")
	cmd.Flags().IntVarP(&spins, "spins", "n", 100000, "Number of spins to run")
	cmd.Flags().Int64Var(&seed, "seed", 1, "RNG seed for reproducible runs")
	cmd.Flags().Float64Var(&bet, "bet", 1, "Bet amount per spin")
	cmd.Flags().Float64Var(&balance, "balance", 0, "Starting balance (default: spins * bet)")
	_ = cmd.MarkFlagRequired("game")

	return cmd
}

func runSimulation(gameFile string, spins int, seed int64, bet, balance float64) error {
	def, err := game.LoadDefinition(gameFile)
	if err != nil {
		return err
	}

	logger := logging.NewDefault().Level(zerolog.ErrorLevel)

	gateway := wallet.NewMemoryGateway()
	jackpots := jackpot.NewService(jackpot.ServiceConfig{
		Store:  jackpot.NewMemoryStore(),
		Logger: logger,
	})
	defer jackpots.Stop()

	ledger := session.NewLedger(session.LedgerConfig{
		Wallet:   gateway,
		Jackpots: jackpots,
		Audit:    session.NewMemoryAudit(),
		Logger:   logger,
	})

	ctx := context.Background()
	if err := ledger.RegisterSeededGame(ctx, def, seed); err != nil {
		return err
	}

	betAmount := decimal.NewFromFloat(bet)
	if balance <= 0 {
		balance = float64(spins) * bet
	}
	gateway.SetBalance("simulator", wallet.CurrencyGC, decimal.NewFromFloat(balance))

	sess, err := ledger.Open(ctx, "simulator", def.GameID, wallet.CurrencyGC)
	if err != nil {
		return err
	}

	var (
		totalBet    = decimal.Zero
		totalWin    = decimal.Zero
		jackpotWins int
		winSpins    int
	)
	for i := 0; i < spins; i++ {
		result, _, err := ledger.Spin(ctx, sess.ID, betAmount)
		if err != nil {
			return fmt.Errorf("spin %d: %w", i+1, err)
		}
		totalBet = totalBet.Add(result.TotalBet)
		totalWin = totalWin.Add(result.TotalWin)
		if result.TotalWin.IsPositive() {
			winSpins++
		}
		if result.JackpotHit {
			jackpotWins++
		}
	}

	if _, err := ledger.End(ctx, sess.ID); err != nil {
		return err
	}

	observedRTP := decimal.Zero
	if totalBet.IsPositive() {
		observedRTP = totalWin.Div(totalBet)
	}

	fmt.Printf("game:          %s (%s)\n", def.GameName, def.GameID)
	fmt.Printf("spins:         %d\n", spins)
	fmt.Printf("total bet:     %s\n", totalBet.StringFixed(2))
	fmt.Printf("total win:     %s\n", totalWin.StringFixed(2))
	fmt.Printf("observed RTP:  %s\n", observedRTP.StringFixed(4))
	fmt.Printf("target RTP:    %.4f\n", def.RTP)
	fmt.Printf("hit rate:      %.4f\n", float64(winSpins)/float64(spins))
	fmt.Printf("jackpot wins:  %d\n", jackpotWins)
	return nil
}
