package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
	"github.com/REPPL/itemdeck-server-go/internal/config"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic"
	_ "github.com/REPPL/itemdeck-server-go/internal/mechanic/competing" // Import to register mechanics
	_ "github.com/REPPL/itemdeck-server-go/internal/mechanic/memory"    // Import to register mechanics
	"github.com/REPPL/itemdeck-server-go/internal/repository"
	"github.com/REPPL/itemdeck-server-go/internal/server"
)

var (
	configPath = flag.String("config", "", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting ItemDeck server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize optional result storage
	var db *repository.DB
	var results *repository.ResultRepository
	if cfg.Database.Enabled {
		db, err = repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		results = repository.NewResultRepository(db, logger)
		if err := results.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare results schema", zap.Error(err))
		}
	} else {
		logger.Info("result storage disabled")
	}

	// Load the card collection
	pool, err := loadCollection(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("failed to load card collection", zap.Error(err))
	}
	logger.Info("card collection loaded",
		zap.String("source", cfg.Collection.Source),
		zap.Int("cards", len(pool.Cards())),
		zap.Int("numeric_fields", len(pool.NumericFields())),
	)

	// Initialize mechanic host
	host := mechanic.NewHost(mechanic.Deps{
		Pool:   pool,
		Logger: logger,
	})
	logger.Info("mechanic host initialized",
		zap.Int("mechanics", len(mechanic.Manifests())),
	)

	// Seed per-mechanic settings before anything activates
	for id, patch := range cfg.Mechanics.Settings {
		if err := host.ApplySettings(id, patch); err != nil {
			logger.Warn("configured mechanic settings rejected",
				zap.String("mechanic", id),
				zap.Error(err))
		}
	}
	if cfg.Mechanics.Initial != "" {
		if _, err := host.Activate(cfg.Mechanics.Initial); err != nil {
			logger.Warn("initial mechanic activation failed",
				zap.String("mechanic", cfg.Mechanics.Initial),
				zap.Error(err))
		}
	}

	srv := server.NewServer(host, pool, results, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
		}
	}()

	logger.Info("ItemDeck server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
		zap.String("initial_mechanic", cfg.Mechanics.Initial),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Tear down the active mechanic so pending callbacks are cancelled
	host.Deactivate()

	logger.Info("ItemDeck server stopped")
}

// loadCollection builds the card pool from the configured source.
func loadCollection(ctx context.Context, cfg *config.Config, db *repository.DB, logger *zap.Logger) (cardpool.Provider, error) {
	switch cfg.Collection.Source {
	case "file":
		return cardpool.LoadFile(cfg.Collection.Path)
	case "postgres":
		cards, err := repository.NewCardSource(db, logger).LoadCards(ctx)
		if err != nil {
			return nil, err
		}
		return cardpool.NewStaticProvider(cards, cardpool.DetectOptions{
			LowerIsBetter: cfg.Collection.LowerIsBetter,
		}), nil
	default:
		return cardpool.Sample(), nil
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
