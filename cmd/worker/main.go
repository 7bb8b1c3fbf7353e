package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/cadence"
	"github.com/GrayGhostDev/leadflow/internal/config"
	"github.com/GrayGhostDev/leadflow/internal/consumer"
	"github.com/GrayGhostDev/leadflow/internal/delivery"
	"github.com/GrayGhostDev/leadflow/internal/experiment"
	"github.com/GrayGhostDev/leadflow/internal/logger"
	"github.com/GrayGhostDev/leadflow/internal/orchestrator"
	"github.com/GrayGhostDev/leadflow/internal/queue/sqs"
	"github.com/GrayGhostDev/leadflow/internal/repository/clickhouse"
	"github.com/GrayGhostDev/leadflow/internal/scoring"
	"github.com/GrayGhostDev/leadflow/internal/store"
	storememory "github.com/GrayGhostDev/leadflow/internal/store/memory"
	storesqlite "github.com/GrayGhostDev/leadflow/internal/store/sqlite"
	"github.com/GrayGhostDev/leadflow/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, "worker")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting worker service",
		zap.String("environment", cfg.Service.Environment))

	ctx := context.Background()

	// Initialize ClickHouse client
	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	// Initialize event repository
	repo := clickhouse.NewRepository(chClient, log)

	// Initialize schema (create tables if not exist)
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	log.Info("Database schema initialized")

	// Initialize entity store
	entityStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("Failed to open entity store", zap.Error(err))
	}
	defer func() {
		if err := entityStore.Close(); err != nil {
			log.Error("Failed to close entity store", zap.Error(err))
		}
	}()

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Initialize the engagement tracker. Every downstream engine reacts to
	// events flowing through it.
	eventTracker := tracker.New(repo, tracker.Config{MaxClockSkew: cfg.Engine.MaxClockSkew}, nil, log)

	// Initialize scoring
	factors, err := loadFactors(cfg.Engine.ScoringFactorsPath)
	if err != nil {
		log.Fatal("Failed to load scoring factors", zap.Error(err))
	}
	scorer := scoring.NewEngine(factors, log)
	updater := scoring.NewUpdater(scorer, entityStore, eventTracker, nil, log)
	eventTracker.Subscribe(updater.OnEvent)

	// Initialize cadence and experiment engines
	cadenceEngine := cadence.NewEngine(cadence.Config{
		MaxTouches: cfg.Engine.MaxTouches,
		Window:     cfg.Engine.TouchWindow,
	}, log)
	experiments := experiment.NewEngine(entityStore, nil, log)

	// Initialize delivery dispatcher over the delivery queue
	adapter := delivery.NewSQSAdapter(sqsClient.Client(), cfg.SQS.DeliveryQueueURL, log)
	dispatcher := delivery.NewDispatcher(adapter, delivery.DispatcherConfig{
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		InitialBackoff: cfg.Delivery.InitialBackoff,
		MaxBackoff:     cfg.Delivery.MaxBackoff,
	}, log)

	// Initialize orchestrator
	orch := orchestrator.New(entityStore, eventTracker, eventTracker, cadenceEngine, experiments,
		delivery.TemplateRenderer{}, dispatcher, orchestrator.Config{
			Partitions:     cfg.Worker.Partitions,
			PartitionIndex: cfg.Worker.PartitionIndex,
			LeaseTTL:       cfg.Worker.LeaseTTL,
			TickBatchSize:  cfg.Worker.TickBatchSize,
			Concurrency:    cfg.Worker.Concurrency,
		}, nil, log)
	eventTracker.Subscribe(orch.OnEvent)

	// Initialize consumer feeding the tracker from the ingest queue
	c := consumer.NewConsumer(sqsClient, eventTracker, log)

	// Start health check endpoint
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := repo.Ping(r.Context()); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		addr := ":" + cfg.Worker.HealthCheckPort
		log.Info("Health check server starting", zap.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Health check server error", zap.Error(err))
		}
	}()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("Consumer starting")

	go func() {
		if err := c.Start(workerCtx); err != nil {
			log.Fatal("Consumer error", zap.Error(err))
		}
	}()

	// Tick loop drives due enrollments
	go func() {
		ticker := time.NewTicker(cfg.Worker.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				processed, err := orch.Tick(workerCtx)
				if err != nil {
					log.Error("Tick failed", zap.Error(err))
					continue
				}
				if processed > 0 {
					log.Debug("Tick completed", zap.Int("processed", processed))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker gracefully")
	cancel()
	orch.Drain()
	eventTracker.Drain()
}

func openStore(ctx context.Context, cfg config.Store, log *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return storememory.New(), nil
	default:
		return storesqlite.Open(ctx, cfg.DSN, log)
	}
}

func loadFactors(path string) ([]scoring.Factor, error) {
	if path == "" {
		return scoring.DefaultFactors(), nil
	}
	return scoring.LoadFactors(path)
}
