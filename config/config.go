package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName            string `env:"APP_NAME" envDefault:"fern"`
	AppEnv             string `env:"APP_ENV" envDefault:""`
	NodeEnv            string `env:"NODE_ENV" envDefault:""`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" envDefault:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" envDefault:"3" validate:"min=1"`

	// PostgreSQL (canonical store)
	DatabaseDriver                string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" envDefault:"localhost" validate:"required"`
	DatabasePort                  string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword              string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                  string        `env:"DB_NAME" envDefault:"fern" validate:"required"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" envDefault:"5"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Graph Database (Neo4j/Memgraph)
	GraphDBHost     string `env:"GRAPH_DB_HOST" envDefault:"localhost" validate:"required"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" envDefault:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" envDefault:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" envDefault:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" envDefault:""`

	// Geocoding provider
	GeocodingBaseURL       string        `env:"GEOCODING_BASE_URL" envDefault:"https://maps.googleapis.com/maps/api" validate:"required,url"`
	GeocodingAPIKey        string        `env:"GEOCODING_API_KEY" envDefault:""`
	GeocodingTimeout       time.Duration `env:"GEOCODING_TIMEOUT" envDefault:"10s"`
	GeocodingRatePerSecond float64       `env:"GEOCODING_RATE_PER_SECOND" envDefault:"10" validate:"gt=0"`
	GeocodingCacheTTL      time.Duration `env:"GEOCODING_CACHE_TTL" envDefault:"168h"`

	// Redis (optional: geocoding cache, stage lock)
	RedisEnabled     bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost        string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort        int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	StageLockEnabled bool          `env:"STAGE_LOCK_ENABLED" envDefault:"false"`
	StageLockTTL     time.Duration `env:"STAGE_LOCK_TTL" envDefault:"30m"`

	// Kafka (optional: report events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaReportTopic  string   `env:"KAFKA_REPORT_TOPIC" envDefault:"city-reconciliation-reports"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" envDefault:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Metrics (optional: prometheus pushgateway)
	MetricsPushgatewayURL string `env:"METRICS_PUSHGATEWAY_URL" envDefault:""`

	// Tracing (optional: OTLP)
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPProtocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`

	// Pipeline
	ReportURL           string `env:"REPORT_URL" envDefault:"reports"`
	BackfillConcurrency int    `env:"BACKFILL_CONCURRENCY" envDefault:"1" validate:"min=1,max=64"`
	ShadowForceApply    bool   `env:"SHADOW_FORCE_APPLY" envDefault:"false"`
}

// Load reads .env files (when present) and binds the process environment.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		// missing files are expected outside local development
		_ = godotenv.Load(file)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom binds config from an explicit variable map instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Environment resolves APP_ENV/NODE_ENV into the pipeline environment.
func (c *Config) Environment() Environment {
	return ResolveEnvironment(c.AppEnv, c.NodeEnv)
}

// DatabaseDSN builds the lib/pq connection string.
func (c *Config) DatabaseDSN() string {
	parts := []string{
		"host=" + c.DatabaseHost,
		"port=" + c.DatabasePort,
		"dbname=" + c.DatabaseName,
		"sslmode=" + c.DatabaseSSLMode,
	}
	if c.DatabaseUserName != "" {
		parts = append(parts, "user="+c.DatabaseUserName)
	}
	if c.DatabasePassword != "" {
		parts = append(parts, "password="+c.DatabasePassword)
	}
	return strings.Join(parts, " ")
}
