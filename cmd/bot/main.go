// HFT engine — order-book maintenance, batched feature extraction, ML
// ensemble inference, trade gating, routing, risk management, and
// telemetry fan-out for a single venue.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires every component, waits for SIGINT/SIGTERM
//	internal/book/book.go      — per-symbol order book maintainer (C1)
//	internal/features/         — feature batcher + vector-first kernel (C3)
//	internal/inference/        — ML ensemble inference pool (C4)
//	internal/gate/gate.go      — trade gate (C5)
//	internal/router/router.go  — routing + sizing (C6)
//	internal/risk/manager.go   — risk manager (C7)
//	internal/engine/engine.go  — engine loop orchestrator (C8)
//	internal/telemetry/        — telemetry fan-out (C9)
//	internal/venue/            — venue adapter: REST order entry, EIP-712 signing, WS market data
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hft-engine/internal/config"
	"hft-engine/internal/engine"
	"hft-engine/internal/features"
	"hft-engine/internal/gate"
	"hft-engine/internal/inference"
	"hft-engine/internal/metrics"
	"hft-engine/internal/risk"
	"hft-engine/internal/telemetry"
	"hft-engine/internal/venue"
	"hft-engine/pkg/types"
)

func main() {
	cfgPath := "configs/config.toml"
	if p := os.Getenv("HFT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("HFT_LOG_LEVEL")),
	}))

	riskMgr := risk.New(cfg.RiskLimits(), logger)
	g := gate.New(cfg.GateParams())
	kernel := features.NewKernel(cfg.ComputeMode())
	pool := inference.NewPool(cfg.ModelTimeout(), logger)

	if err := loadModels(cfg, pool, logger); err != nil {
		logger.Error("failed to load required models", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	pub := telemetry.NewPublisher(logger)

	privateKey := os.Getenv("HFT_WALLET_PRIVATE_KEY")
	if privateKey == "" {
		if _, secret := config.HyperliquidCredentials(); secret != "" {
			privateKey = secret
		}
	}
	if privateKey == "" {
		logger.Error("no wallet private key configured (set HFT_WALLET_PRIVATE_KEY or HYPERLIQUID_SECRET)")
		os.Exit(1)
	}

	adapter, err := venue.New(venue.Config{
		RESTBaseURL:   cfg.Venues.RESTBaseURL,
		WSURL:         cfg.WebSocket.URL,
		PrivateKeyHex: privateKey,
		ChainID:       int64(cfg.Venues.ChainID),
		DryRun:        os.Getenv("HFT_DRY_RUN") == "true",
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to construct venue adapter", "error", err)
		os.Exit(1)
	}

	eng := engine.New(engine.Config{
		Mode:     cfg.DecisionMode(),
		Universe: cfg.SymbolUniverse(),
		Category: cfg.ModelCategory(),
		Costs:    cfg.CostModel(),

		Adapter: adapter,
		Kernel:  kernel,
		Pool:    pool,
		Gate:    g,
		Risk:    riskMgr,

		BatchSize:    cfg.Engine.BatchSize,
		BatchTimeout: cfg.BatchTimeout(),
		SnapshotBuf:  cfg.Engine.SnapshotBuffer,

		Metrics:         met,
		Telemetry:       pub,
		MetricsInterval: cfg.Engine.MetricsInterval,

		Alert: func(level types.AlertLevel, source, message string) {
			pub.PublishAlert(types.Alert{
				TimestampNs: time.Now().UnixNano(),
				Level:       level,
				Source:      source,
				Message:     message,
			})
		},
		Logger: logger,
	})

	telemetryServer := telemetry.NewServer(cfg.Engine.TelemetryAddr, pub, func() telemetry.HealthStatus {
		return telemetry.HealthStatus{
			Status:      "ok",
			RunMode:     "live",
			Ready:       eng.Ready(),
			Dropped:     pub.DroppedCounts(),
			TimestampNs: time.Now().UnixNano(),
		}
	}, logger)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Engine.MetricsPort),
		Handler: met.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := telemetryServer.Start(); err != nil {
			logger.Error("telemetry server failed", "error", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("engine starting",
		"mode", cfg.Engine.Mode,
		"category", cfg.Engine.Category,
		"symbols", cfg.Universe.Symbols,
		"venue", cfg.Venues.Name,
	)

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			logger.Error("engine run exited with error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := adapter.Disconnect(shutdownCtx); err != nil {
		logger.Error("adapter disconnect failed", "error", err)
	}
	if err := telemetryServer.Stop(); err != nil {
		logger.Error("telemetry server stop failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server stop failed", "error", err)
	}

	logger.Info("engine stopped")
}

// loadModels loads every model set the configured decision mode requires,
// fatal-fast per spec §7. ml_traditional/hybrid need the configured
// category's four-model set; rl_agent/hybrid need the RL actor/critic
// pair.
func loadModels(cfg *config.Config, pool *inference.Pool, logger *slog.Logger) error {
	mode := cfg.DecisionMode()

	needsCategory := mode == engine.MLTraditional || mode == engine.Hybrid
	needsRL := mode == engine.RLAgent || mode == engine.Hybrid

	if needsCategory {
		dir := cfg.Models.CryptoDir
		loadFn := pool.LoadCrypto
		if cfg.ModelCategory() == inference.Equity {
			dir = cfg.Models.EquityDir
			loadFn = pool.LoadEquity
		}
		set, err := inference.LoadModelSet(dir, inference.DefaultLoader, logger)
		if err != nil {
			return err
		}
		loadFn(set)
	}

	if needsRL {
		actorPath := cfg.Models.RLDir + "/actor.onnx"
		criticPath := cfg.Models.RLDir + "/critic.onnx"
		actor, err := inference.DefaultLoader(actorPath)
		if err != nil {
			return types.WrapError(types.ErrModel, "load RL actor", err)
		}
		critic, err := inference.DefaultLoader(criticPath)
		if err != nil {
			return types.WrapError(types.ErrModel, "load RL critic", err)
		}
		pool.LoadRL(&inference.RLPolicy{Actor: actor, Critic: critic})
		logger.Info("loaded RL policy", "dir", cfg.Models.RLDir)
	}

	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
