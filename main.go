package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockwave/config"
	"stockwave/forecast"
	"stockwave/handlers"
	"stockwave/logging"
	"stockwave/lstm"
	"stockwave/market"
	"stockwave/models"
	"stockwave/pricestore"
	"stockwave/recorder"
	"stockwave/registry"
	"stockwave/routes"
	"stockwave/scheduler"
	"stockwave/service"
	"stockwave/symbols"
)

func main() {
	cfg, v, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Stockwave forecasting API",
		zap.String("provider", cfg.Market.Provider),
		zap.String("cache_dir", cfg.Storage.CacheDir),
		zap.String("model_dir", cfg.Storage.ModelDir),
	)

	// Forecast audit log is optional
	rec, err := recorder.Open(cfg.Database.URL, cfg.Database.SQLitePath, models.GetConnectionPoolConfig(v), logger)
	if err != nil {
		logger.Fatal("Failed to initialize forecast recorder", zap.Error(err))
	}
	defer rec.Close()

	var provider service.Provider
	switch cfg.Market.Provider {
	case "polygon":
		provider = service.NewPolygonProvider(cfg.Market.PolygonAPIKey, cfg.Market.PolygonRatePerMin, logger)
	default:
		provider = service.NewYahooProvider(cfg.Market.Proxy, logger)
	}

	store, err := pricestore.New(cfg.Storage.CacheDir, provider, cfg.Storage.CacheMaxAge, logger)
	if err != nil {
		logger.Fatal("Failed to initialize price store", zap.Error(err))
	}
	reg, err := registry.New(cfg.Storage.ModelDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model registry", zap.Error(err))
	}
	table, err := symbols.Load(cfg.Market.SymbolsFile)
	if err != nil {
		logger.Fatal("Failed to load symbols", zap.Error(err))
	}

	engine := forecast.NewEngine(store, reg, rec, forecast.Options{
		Period:       cfg.Storage.Period,
		Window:       lstm.DefaultWindow,
		Hidden:       cfg.Training.Hidden,
		BatchSize:    cfg.Training.BatchSize,
		Epochs:       cfg.Training.Epochs,
		Patience:     cfg.Training.Patience,
		LearningRate: cfg.Training.LearningRate,
		Seed:         cfg.Training.Seed,
	}, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sched := scheduler.New(ctx, store, engine, cfg.Scheduler.RefreshTickers, cfg.Storage.Period, logger)
	if err := sched.Register(cfg.Scheduler.RefreshCron); err != nil {
		logger.Fatal("Failed to register scheduler", zap.Error(err))
	}
	sched.Start()

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(logger))

	forecastHandler := handlers.NewForecastHandler(engine, provider, cfg.Server.MaxConcurrentTraining, logger)
	marketHandler := handlers.NewMarketHandler(market.NewMovers(provider, logger), table, provider, logger)
	routes.SetupRoutes(router, cfg.Server.CORSOrigins, forecastHandler, marketHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}
