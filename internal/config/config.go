package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Service holds service-level settings shared by both binaries.
type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	Host        string `envconfig:"SERVICE_HOST" default:"localhost:8080"`
}

// SQS holds queue settings for inbound engagement events and outbound
// delivery commands.
type SQS struct {
	Endpoint         string `envconfig:"SQS_ENDPOINT"`
	QueueURL         string `envconfig:"SQS_QUEUE_URL" required:"true"`
	DeliveryQueueURL string `envconfig:"SQS_DELIVERY_QUEUE_URL"`
	Region           string `envconfig:"SQS_REGION" required:"true"`
}

// ClickHouse holds connection settings for the engagement-event store.
type ClickHouse struct {
	Host            string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port            string `envconfig:"CLICKHOUSE_PORT" required:"true"`
	Database        string `envconfig:"CLICKHOUSE_DB" required:"true"`
	User            string `envconfig:"CLICKHOUSE_USER" required:"true"`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD" required:"true"`
	UseTLS          bool   `envconfig:"CLICKHOUSE_USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`
}

// Store selects and configures the entity store backing leads, campaigns,
// enrollments, executions, experiments and leases.
type Store struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STORE_DSN" default:"file:leadflow.db?_pragma=journal_mode(WAL)"`
}

// Engine tunes the scoring, tracker and cadence engines.
type Engine struct {
	MaxClockSkew       time.Duration `envconfig:"ENGINE_MAX_CLOCK_SKEW" default:"5m"`
	MaxTouches         int           `envconfig:"ENGINE_MAX_TOUCHES" default:"3"`
	TouchWindow        time.Duration `envconfig:"ENGINE_TOUCH_WINDOW" default:"168h"`
	ScoringFactorsPath string        `envconfig:"ENGINE_SCORING_FACTORS_PATH"`
}

// Delivery tunes the retrying channel-adapter dispatcher.
type Delivery struct {
	MaxAttempts    int           `envconfig:"DELIVERY_MAX_ATTEMPTS" default:"5"`
	InitialBackoff time.Duration `envconfig:"DELIVERY_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"DELIVERY_MAX_BACKOFF" default:"5m"`
}

// Worker tunes the orchestrator tick loop and the consumer pipeline.
type Worker struct {
	HealthCheckPort string        `envconfig:"WORKER_HEALTH_CHECK_PORT" default:"8081"`
	PollInterval    time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"15s"`
	LeaseTTL        time.Duration `envconfig:"WORKER_LEASE_TTL" default:"5m"`
	Partitions      int           `envconfig:"WORKER_PARTITIONS" default:"1"`
	PartitionIndex  int           `envconfig:"WORKER_PARTITION_INDEX" default:"0"`
	TickBatchSize   int           `envconfig:"WORKER_TICK_BATCH_SIZE" default:"100"`
	Concurrency     int           `envconfig:"WORKER_CONCURRENCY" default:"8"`
}

// Config is the full environment configuration for the engine.
type Config struct {
	Service    Service
	SQS        SQS
	ClickHouse ClickHouse
	Store      Store
	Engine     Engine
	Delivery   Delivery
	Worker     Worker
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
