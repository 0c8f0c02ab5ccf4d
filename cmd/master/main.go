package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/harveybc/prediction-provider-sub000/pkg/api"
	"github.com/harveybc/prediction-provider-sub000/pkg/config"
	"github.com/harveybc/prediction-provider-sub000/pkg/engine"
	"github.com/harveybc/prediction-provider-sub000/pkg/logging"
	"github.com/harveybc/prediction-provider-sub000/pkg/metrics"
	"github.com/harveybc/prediction-provider-sub000/pkg/pricing"
	"github.com/harveybc/prediction-provider-sub000/pkg/ratelimit"
	"github.com/harveybc/prediction-provider-sub000/pkg/shutdown"
	"github.com/harveybc/prediction-provider-sub000/pkg/store"
	"github.com/harveybc/prediction-provider-sub000/pkg/tenancy"
	"github.com/harveybc/prediction-provider-sub000/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	storeType := flag.String("store", "", "Store type: memory, sqlite, postgres (overrides config)")
	dsn := flag.String("dsn", "", "Store DSN (overrides config)")
	metricsPort := flag.String("metrics-port", "9090", "Prometheus metrics port")
	enableMetrics := flag.Bool("metrics", true, "Enable Prometheus metrics endpoint")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *storeType != "" {
		cfg.Store.Type = *storeType
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	if cfg.Logging.ToFile {
		fileLogger, err := logging.NewFileLogger("master", logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
		if err != nil {
			log.Fatalf("Failed to initialize file logger: %v", err)
		}
		logger = fileLogger
	}

	logger.Info("Starting prediction job marketplace node", map[string]interface{}{
		"listen": cfg.Server.Listen,
		"store":  cfg.Store.Type,
	})

	// Persistence
	dataStore, err := store.NewStore(store.Config{
		Type:            cfg.Store.Type,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: config.ParseDuration(cfg.Store.ConnMaxLifetime, 5*time.Minute),
	})
	if err != nil {
		logger.Fatal("Failed to create store", map[string]interface{}{"error": err.Error()})
	}

	// Marketplace engine
	eng, err := engine.New(dataStore, &engine.Config{
		LeaseDuration:     config.ParseDuration(cfg.Engine.LeaseDuration, engine.DefaultLeaseDuration),
		AdmissionWindow:   config.ParseDuration(cfg.Engine.AdmissionWindow, engine.DefaultAdmissionWindow),
		MaxActivePerOwner: cfg.Engine.MaxActivePerOwner,
	})
	if err != nil {
		logger.Fatal("Failed to create engine", map[string]interface{}{"error": err.Error()})
	}
	if len(cfg.Pricing.BaseRates) > 0 {
		eng.SetPricing(pricing.NewModel(cfg.Pricing.BaseRates))
	}

	// Tracing
	tracerProvider, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "prediction-marketplace",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", map[string]interface{}{"error": err.Error()})
	}

	// Router and middleware
	handler := api.NewMarketplaceHandler(eng)
	router := mux.NewRouter()
	router.Use(tracing.HTTPMiddleware(tracerProvider, "prediction-marketplace"))
	router.Use(tenancy.ActorMiddleware(handler.Tokens()))
	go func() {
		for range time.Tick(time.Hour) {
			handler.Tokens().CleanupExpiredTokens()
		}
	}()
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		router.Use(limiter.Middleware(ratelimit.ActorKeyFunc))
		go func() {
			for range time.Tick(10 * time.Minute) {
				limiter.CleanupOldLimiters(time.Hour)
			}
		}()
	}
	handler.RegisterRoutes(router)

	sd := shutdown.New(30 * time.Second)
	sd.Register(shutdown.CloseResource(dataStore, "store"))
	sd.Register(tracerProvider.Shutdown)

	// Lease sweeper
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	if cfg.Engine.AutoRelease() {
		sweeper := engine.NewSweeper(eng,
			config.ParseDuration(cfg.Engine.SweepInterval, engine.DefaultSweepInterval),
			config.ParseDuration(cfg.Engine.SweepGrace, engine.DefaultSweepGrace))
		go sweeper.Run(sweepCtx)
	}
	sd.Register(func(ctx context.Context) error {
		cancelSweep()
		return nil
	})

	// Metrics server
	if *enableMetrics {
		exporter := metrics.NewMarketplaceExporter(dataStore)
		eng.SetRecorder(exporter)

		metricsRouter := mux.NewRouter()
		metricsRouter.Handle(cfg.Server.MetricsPath, exporter).Methods("GET")
		metricsRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"healthy"}`))
		}).Methods("GET")

		metricsSrv := &http.Server{
			Addr:         ":" + *metricsPort,
			Handler:      metricsRouter,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics server listening", map[string]interface{}{"port": *metricsPort})
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", map[string]interface{}{"error": err.Error()})
			}
		}()
		sd.Register(shutdown.StopHTTPServer(metricsSrv, "metrics"))
	}

	// API server
	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("Marketplace API listening", map[string]interface{}{"addr": cfg.Server.Listen})
		log.Println("API endpoints:")
		log.Println("  POST   /jobs")
		log.Println("  GET    /jobs")
		log.Println("  GET    /jobs/pending")
		log.Println("  GET    /jobs/{id}")
		log.Println("  POST   /jobs/{id}/claim")
		log.Println("  POST   /jobs/{id}/result")
		log.Println("  POST   /jobs/{id}/release")
		log.Println("  POST   /jobs/{id}/cancel")
		log.Println("  POST   /jobs/{id}/fail")
		log.Println("  POST   /jobs/{id}/priority")
		log.Println("  POST   /tokens")
		log.Println("  DELETE /tokens/{actor}")
		log.Println("  GET    /health")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	sd.Register(shutdown.StopHTTPServer(srv, "api"))

	if err := sd.WaitWithContext(context.Background()); err != nil {
		logger.Error("Shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Close()
}
