package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/api"
	"github.com/leafsii/collateral-engine/internal/config"
	"github.com/leafsii/collateral-engine/internal/engine"
	"github.com/leafsii/collateral-engine/internal/jobs"
	"github.com/leafsii/collateral-engine/internal/log"
	"github.com/leafsii/collateral-engine/internal/metrics"
	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/internal/oracle/binance"
	"github.com/leafsii/collateral-engine/internal/repository"
	"github.com/leafsii/collateral-engine/internal/token"
	"github.com/leafsii/collateral-engine/internal/ws"
	"github.com/leafsii/collateral-engine/pkg/kv"
	_ "github.com/leafsii/collateral-engine/pkg/kv/memory"
	_ "github.com/leafsii/collateral-engine/pkg/kv/redis"
)

const collateralDecimals = 18

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting collateral engine API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"engine", cfg.Engine.Address,
		"assets", cfg.Engine.CollateralAssets,
		"feeds", cfg.Engine.PriceFeeds,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("collateral-engine")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Ledger store
	store, err := kv.NewStoreFromConfig(kv.Config{
		Backend:  kv.Backend(cfg.Store.Backend),
		RedisURL: cfg.Store.RedisURL,
		Logger:   logger.Infow,
	})
	if err != nil {
		logger.Fatalw("Failed to open ledger store", "backend", cfg.Store.Backend, "error", err)
	}
	defer store.Close()

	// Background services share this context
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Price feeds
	feed, devPrices, err := setupOracle(bgCtx, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to setup price feed", "provider", cfg.Prices.Provider, "error", err)
	}

	// Tokens
	stable := token.New(cfg.StableTokenAddress(), "DSC", 18, cfg.EngineAddress())
	assets := cfg.CollateralAddresses()
	collateralLedgers := make([]*token.Ledger, len(assets))
	collateral := make(map[common.Address]engine.CollateralToken, len(assets))
	for i, asset := range assets {
		l := token.New(asset, symbolFor(cfg.Engine.PriceFeeds[i]), collateralDecimals, cfg.AdminAddress())
		collateralLedgers[i] = l
		collateral[asset] = l
	}

	// Event sinks
	hub := ws.NewHub(cfg.Security.CORSAllowedOrigins, logger, metricsObj)
	sinks := []engine.EventSink{hub}

	var journal *repository.Repository
	if cfg.Database.PostgresDSN != "" {
		db, err := openJournal(bgCtx, cfg.Database.PostgresDSN)
		if err != nil {
			logger.Fatalw("Failed to connect to event journal", "error", err)
		}
		defer db.Close()
		journal = repository.NewRepository(db, logger)
		sinks = append(sinks, journal)
		logger.Infow("Event journal enabled")
	} else {
		logger.Infow("Event journal disabled, DSC_POSTGRES_DSN not set")
	}

	eng, err := engine.New(engine.Config{
		Address: cfg.EngineAddress(),
		Assets:  assets,
		Feeds:   cfg.Engine.PriceFeeds,
	}, engine.Deps{
		Store:      store,
		Oracle:     feed,
		Stable:     stable,
		Collateral: collateral,
		Logger:     logger,
		Metrics:    metricsObj,
		Sinks:      sinks,
	})
	if err != nil {
		logger.Fatalw("Failed to create engine", "error", err)
	}

	// Start hub and health monitor in background
	go hub.Run(bgCtx)

	monitor := jobs.NewHealthMonitor(eng, hub, metricsObj, logger, jobs.HealthMonitorConfig{
		Interval: cfg.Monitor.Interval,
	})
	go func() {
		if err := monitor.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("Health monitor error", "error", err)
		}
	}()

	// Setup API handler and middleware
	deps := api.HandlerDeps{
		Engine:     eng,
		Stable:     stable,
		Collateral: collateralLedgers,
		Store:      store,
		Stream:     hub,
		Admin:      cfg.AdminAddress(),
		Dev:        cfg.IsDev(),
		Logger:     logger,
	}
	if journal != nil {
		deps.Journal = journal
	}
	if devPrices != nil {
		deps.Prices = devPrices
	}
	handler := api.NewHandler(deps)
	middleware := api.NewMiddleware(logger, metricsObj)

	// Create router with middleware and routes - pass security config to Routes
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server. Write deadlines are enforced per route so event
	// streams can stay open.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		monitor.Stop()
		bgCancel()

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}

// setupOracle builds the configured price feed behind the staleness guard.
// The static feed is also returned so dev deployments can move prices.
func setupOracle(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (oracle.Feed, *oracle.Static, error) {
	switch cfg.Prices.Provider {
	case "static":
		static := oracle.NewStatic(uint8(cfg.Oracle.FeedDecimals))
		prices, err := oracle.ParsePrices(cfg.Prices.StaticPrices)
		if err != nil {
			return nil, nil, err
		}
		for feedID, price := range prices {
			static.SetPrice(feedID, price)
		}
		return oracle.NewStaleGuard(static, cfg.Oracle.MaxAge), static, nil

	case "binance":
		registry := oracle.NewRegistry()
		symbols, err := registry.ProviderSymbols(cfg.Engine.PriceFeeds...)
		if err != nil {
			return nil, nil, err
		}
		feed := binance.NewFeed(logger, registry)
		if cfg.Prices.BinanceStream {
			go feed.Stream(ctx, symbols)
		}
		return oracle.NewStaleGuard(feed, cfg.Oracle.MaxAge), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown price provider %q", cfg.Prices.Provider)
}

func openJournal(ctx context.Context, dsn string) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return repository.Open(ctx, dsn)
}

// symbolFor names a collateral token after its feed: "ETH/USD" becomes "WETH".
func symbolFor(feed string) string {
	base, _, _ := strings.Cut(feed, "/")
	return "W" + strings.ToUpper(base)
}
