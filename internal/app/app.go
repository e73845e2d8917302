package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/credentials"
	"github.com/akatsuki-labs/akatsuki/internal/evaluation"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
	"github.com/akatsuki-labs/akatsuki/internal/infra"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/metrics"
	"github.com/akatsuki-labs/akatsuki/internal/notification"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
	"github.com/akatsuki-labs/akatsuki/internal/session"
	"github.com/akatsuki-labs/akatsuki/internal/stake"
)

// App holds every long-lived component built from configuration.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     objectstore.Store
	Ledger    *ledger.Ledger
	Sessions  session.Store
	Tally     funding.Tally
	Metrics   *metrics.Prometheus
	Notifier  *notification.Dispatcher
	Runner    *Runner
	Evaluator *evaluation.Evaluator

	// Sessions and Allowance serve the HTTP and CLI views; they never touch the portal.
	SessionView   *auth.Service
	AllowanceView *funding.Service

	DB    *pgxpool.Pool
	Cache *redis.Client

	kafka *kafka.Writer
}

// Build wires storage, credentials, notification, the Runner and the
// Evaluator from cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Cache = cache
	}

	provider, err := a.buildObjectStore(ctx)
	if err != nil {
		return err
	}

	if err := a.buildLedger(ctx); err != nil {
		return err
	}

	switch cfg.SessionBackend {
	case config.BackendRedis:
		if a.Cache == nil {
			return errors.New("session backend redis requires REDIS_URL")
		}
		a.Sessions = session.NewRedisStore(a.Cache)
	case config.BackendObject:
		a.Sessions = session.NewObjectStore(a.Store)
	default:
		a.Sessions = session.NewMemoryStore()
	}

	if a.Cache != nil {
		a.Tally = funding.NewRedisTally(a.Cache)
	} else {
		a.Tally = funding.NewMemoryTally()
	}

	notifier, err := a.buildNotifier()
	if err != nil {
		return err
	}
	a.Notifier = notification.NewDispatcher(notifier, notification.DispatcherOptions{
		Routes: notification.Routes{
			Ops:    cfg.Notify.ChannelOps,
			Alerts: cfg.Notify.ChannelAlerts,
			Bets:   cfg.Notify.ChannelBets,
		},
		MaxAttempts: cfg.Notify.MaxAttempts,
		RetryDelay:  cfg.Notify.RetryDelay,
	}, a.Logger)

	a.Metrics = metrics.New()

	policy := funding.Policy{DefaultDeposit: cfg.Funding.DefaultDeposit, MaxPerDay: cfg.Funding.MaxPerDay}
	a.SessionView = auth.NewService(nil, provider, a.Sessions, cfg.Secrets.Name, cfg.Run.ExecutionIdentity, a.Logger)
	a.AllowanceView = funding.NewService(nil, a.Tally, policy, a.Logger)

	a.Runner = NewRunner(RunnerDeps{
		Config:      cfg,
		Ledger:      a.Ledger,
		Sessions:    a.Sessions,
		Credentials: provider,
		Tally:       a.Tally,
		Budget:      stake.NewBudgeter(a.Store, cfg.Stake.SchedulePath, cfg.Stake.DefaultBudget, a.Logger),
		Notifier:    a.Notifier,
		Metrics:     a.Metrics,
		Store:       a.Store,
		OpenPortal:  ChromePortal(cfg, a.Logger),
	}, a.Logger)
	a.Evaluator = evaluation.NewEvaluator(a.Ledger, a.Store, a.Notifier, cfg.Location(), a.Logger)
	return nil
}

// buildObjectStore selects S3 when a bucket is configured and returns the
// credential provider, which shares the AWS configuration.
func (a *App) buildObjectStore(ctx context.Context) (credentials.Provider, error) {
	cfg := a.Config
	needAWS := cfg.ObjectStore.Bucket != "" || cfg.Secrets.Provider == "aws"

	if !needAWS {
		a.Store = objectstore.NewMemory()
		return credentials.NewEnvProvider(cfg.Secrets.EnvPrefix), nil
	}

	awsCfg, err := infra.LoadAWSConfig(ctx, cfg.ObjectStore.Region)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.ObjectStore.Bucket != "" {
		client := infra.NewS3Client(awsCfg, cfg.ObjectStore.Endpoint)
		a.Store = objectstore.NewS3Store(client, cfg.ObjectStore.Bucket, cfg.ObjectStore.Prefix)
	} else {
		a.Store = objectstore.NewMemory()
	}

	if cfg.Secrets.Provider == "aws" {
		return credentials.NewSecretsManagerProvider(infra.NewSecretsManagerClient(awsCfg)), nil
	}
	return credentials.NewEnvProvider(cfg.Secrets.EnvPrefix), nil
}

func (a *App) buildLedger(ctx context.Context) error {
	cfg := a.Config
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		db, err := infra.NewLedgerPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.DB = db
		storage := ledger.NewPostgresStorage(db)
		if err := storage.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
		a.Ledger = ledger.New(storage, a.Logger)
	case config.BackendObject:
		a.Ledger = ledger.New(ledger.NewObjectStorage(a.Store), a.Logger)
	default:
		a.Ledger = ledger.New(ledger.NewInMemory(), a.Logger)
	}
	return nil
}

func (a *App) buildNotifier() (notification.Notifier, error) {
	if a.Config.Notify.Backend != "kafka" {
		return notification.NewLoggerNotifier(a.Logger), nil
	}
	writer, err := infra.NewKafkaWriter(a.Config.Notify.KafkaBrokers, a.Config.Notify.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("kafka writer: %w", err)
	}
	a.kafka = writer
	return notification.NewKafkaNotifier(writer), nil
}

// Close drains pending notifications and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Notifier != nil {
		if err := a.Notifier.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka: %w", err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}
