package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/docs"
	"github.com/GrayGhostDev/leadflow/internal/config"
	"github.com/GrayGhostDev/leadflow/internal/experiment"
	"github.com/GrayGhostDev/leadflow/internal/handler"
	"github.com/GrayGhostDev/leadflow/internal/logger"
	"github.com/GrayGhostDev/leadflow/internal/queue/sqs"
	"github.com/GrayGhostDev/leadflow/internal/repository/clickhouse"
	"github.com/GrayGhostDev/leadflow/internal/scoring"
	"github.com/GrayGhostDev/leadflow/internal/service"
	"github.com/GrayGhostDev/leadflow/internal/store"
	storememory "github.com/GrayGhostDev/leadflow/internal/store/memory"
	storesqlite "github.com/GrayGhostDev/leadflow/internal/store/sqlite"
	"github.com/GrayGhostDev/leadflow/internal/tracker"
)

// @title LeadFlow Engagement API
// @version 1.0
// @description API for recording engagement events and reading lead and experiment insights
// @host localhost:8080
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, "api")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	// Configure Swagger host dynamically
	docs.SwaggerInfo.Host = cfg.Service.Host

	ctx := context.Background()

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	// Initialize repositories
	repo := clickhouse.NewRepository(clickhouseClient, log)

	entityStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("Failed to open entity store", zap.Error(err))
	}
	defer func() {
		if err := entityStore.Close(); err != nil {
			log.Error("Failed to close entity store", zap.Error(err))
		}
	}()

	// Initialize engines for the read-only insight projections
	factors, err := loadFactors(cfg.Engine.ScoringFactorsPath)
	if err != nil {
		log.Fatal("Failed to load scoring factors", zap.Error(err))
	}
	scorer := scoring.NewEngine(factors, log)
	analyzer := experiment.NewEngine(entityStore, nil, log)
	eventTracker := tracker.New(repo, tracker.Config{MaxClockSkew: cfg.Engine.MaxClockSkew}, nil, log)

	// Initialize services
	eventService := service.NewEventService(sqsClient, repo, cfg.Engine.MaxClockSkew, log)
	insightService := service.NewInsightService(entityStore, entityStore, eventTracker, scorer, analyzer, log)

	// Initialize handler
	h := handler.NewHandler(eventService, insightService, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	log.Info("API server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
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
