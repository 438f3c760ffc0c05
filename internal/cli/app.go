package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/city"
	"github.com/Ramsey-B/fern/internal/repositories/readmodel"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/geocoding"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/reconcile"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type scope int

const (
	// scopeDatabase opens the canonical store only
	scopeDatabase scope = iota
	// scopeStages opens every client the stages need
	scopeStages
)

const (
	depTracing  = "tracing"
	depPostgres = "postgres"
	depGraph    = "graph"
	depRedis    = "redis"
	depKafka    = "kafka"
)

// App is one process worth of constructed clients.
type App struct {
	cfg      *config.Config
	logger   ectologger.Logger
	out      io.Writer
	startup  *startup.Startup
	db       *database.DatabaseInstance
	stages   stageRunner
	writer   reportWriter
	events   reportPublisher
	locker   stageLocker
	flushLog func() error
}

// loadConfig reads the environment and applies the root flags. It touches no store.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return nil, err
	}
	if opts.ReportURL != "" {
		cfg.ReportURL = opts.ReportURL
	}
	if cfg.StageLockEnabled && !cfg.RedisEnabled {
		return nil, fmt.Errorf("STAGE_LOCK_ENABLED requires REDIS_ENABLED")
	}
	return cfg, nil
}

// openApp starts the clients of scope through the startup graph. The caller
// must Close the App.
func openApp(ctx context.Context, cfg *config.Config, s scope, out io.Writer) (*App, error) {
	logger, zapLogger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		startup:  startup.NewStartup(logger, cfg.StartupMaxAttempts),
		flushLog: zapLogger.Sync,
	}

	var (
		graphClient *graph.Client
		redisClient *redis.Client
		producer    *kafka.Producer
	)

	app.startup.AddDependency(app.tracingDependency())
	app.startup.AddDependency(startup.Func{
		Name:  depPostgres,
		Needs: []string{depTracing},
		OnStart: func(ctx context.Context) error {
			db, err := database.Open(ctx, database.Config{
				Driver:          cfg.DatabaseDriver,
				DSN:             cfg.DatabaseDSN(),
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			app.db = db
			return nil
		},
		OnStop: func(ctx context.Context) error { return app.db.Close() },
	})

	if s == scopeStages {
		app.startup.AddDependency(startup.Func{
			Name:  depGraph,
			Needs: []string{depTracing},
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
					Database: cfg.GraphDBName,
				}, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("graph store unreachable: %w", err)
				}
				graphClient = client
				return nil
			},
			OnStop: func(ctx context.Context) error { return graphClient.Close(ctx) },
		})

		if cfg.RedisEnabled {
			app.startup.AddDependency(startup.Func{
				Name: depRedis,
				OnStart: func(ctx context.Context) error {
					client, err := redis.NewClient(ctx, redis.Config{
						Host:     cfg.RedisHost,
						Port:     cfg.RedisPort,
						Password: cfg.RedisPassword,
						DB:       cfg.RedisDB,
					}, logger)
					if err != nil {
						return err
					}
					redisClient = client
					return nil
				},
				OnStop: func(ctx context.Context) error { return redisClient.Close() },
			})
		}

		if cfg.KafkaEnabled {
			app.startup.AddDependency(startup.Func{
				Name: depKafka,
				OnStart: func(ctx context.Context) error {
					p, err := kafka.NewProducer(kafka.Config{
						Brokers:      cfg.KafkaBrokers,
						Topic:        cfg.KafkaReportTopic,
						BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
						RequiredAcks: cfg.KafkaRequiredAcks,
						Compression:  cfg.KafkaCompression,
					}, logger)
					if err != nil {
						return err
					}
					producer = p
					return nil
				},
				OnStop: func(ctx context.Context) error { return producer.Close() },
			})
		}
	}

	if err := app.startup.Start(ctx); err != nil {
		_ = app.startup.Stop(ctx)
		return nil, err
	}

	if s == scopeStages {
		var cache geocoding.Cache
		if redisClient != nil {
			cache = redis.NewGeocodeCache(redisClient, "")
			if cfg.StageLockEnabled {
				app.locker = redis.NewLocker(redisClient, "")
			}
		}
		if producer != nil {
			app.events = producer
		}

		provider := geocoding.NewClient(geocoding.Config{
			BaseURL:       cfg.GeocodingBaseURL,
			APIKey:        cfg.GeocodingAPIKey,
			Timeout:       cfg.GeocodingTimeout,
			RatePerSecond: cfg.GeocodingRatePerSecond,
			CacheTTL:      cfg.GeocodingCacheTTL,
		}, cache, logger)

		app.stages = reconcile.New(reconcile.Dependencies{
			Graph:       graph.NewCityReader(graphClient, logger),
			Canonical:   city.NewRepository(app.db, logger),
			ReadModels:  readmodel.NewRepository(app.db, logger),
			Resolver:    identity.NewResolver(provider, logger),
			Environment: cfg.Environment(),
			Logger:      logger,
			Concurrency: cfg.BackfillConcurrency,
		})
		app.writer = report.NewWriter(cfg.ReportURL, logger)
	}

	return app, nil
}

// tracingDependency installs the tracer provider and flushes it on stop.
func (a *App) tracingDependency() startup.Dependency {
	var shutdown tracing.Shutdown
	return startup.Func{
		Name: depTracing,
		OnStart: func(ctx context.Context) error {
			s, err := tracing.Init(ctx, a.cfg.AppName, tracing.OTLPConfig{
				Endpoint: a.cfg.OTLPEndpoint,
				Protocol: a.cfg.OTLPProtocol,
				Insecure: a.cfg.OTLPInsecure,
			})
			if err != nil {
				return err
			}
			shutdown = s
			return nil
		},
		OnStop: func(ctx context.Context) error { return shutdown(ctx) },
	}
}

// Close stops every started client in reverse order.
func (a *App) Close(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	if a.flushLog != nil {
		_ = a.flushLog()
	}
	return err
}
