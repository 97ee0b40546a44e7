package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paper-trade-bot-go/internal/binance"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/logger"
	"paper-trade-bot-go/internal/paper"
	"paper-trade-bot-go/internal/scheduler"
	"paper-trade-bot-go/internal/trader"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger, "trader")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))
	repo := database.NewRepository(db, cfg.Paper, cfg.Executor.BalanceRetries)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(ctx); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	var stream *binance.TickerStream
	if cfg.Binance.StreamEnabled {
		stream = binance.NewTickerStream(cfg.Binance.StreamURL, paper.SupportedPairs, log)
		go stream.Run(ctx)
	}
	oracle := binance.NewOracle(restClient, stream, cfg.Binance.PriceMaxAge, log)

	engine := trader.NewEngine(log, cfg.Executor, repo, oracle)
	scheduler.New(log, cfg.Scheduler, repo, engine).Run(ctx)

	log.Info("Bot scheduler has been shut down.")
}
