package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	assistantapp "fleet-risk-engine/internal/assistant/application"
	assistant "fleet-risk-engine/internal/assistant/domain"
	"fleet-risk-engine/internal/assistant/infrastructure/openai"
	"fleet-risk-engine/internal/audit"
	"fleet-risk-engine/internal/eventing"
	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/fleet/infrastructure/memory"
	"fleet-risk-engine/internal/fleet/infrastructure/postgres"
	"fleet-risk-engine/internal/notify"
	healthapp "fleet-risk-engine/internal/health/application"
	health "fleet-risk-engine/internal/health/domain"
	"fleet-risk-engine/internal/observability/metrics"
	"fleet-risk-engine/internal/platform/config"
	qualityapp "fleet-risk-engine/internal/quality/application"
	riskapp "fleet-risk-engine/internal/risk/application"
	schedulingapp "fleet-risk-engine/internal/scheduling/application"
)

// Container holds the wired engine shared by the server and the CLI.
type Container struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      fleet.SignalStore
	Publisher  eventing.Publisher
	Audit      audit.Logger
	Health     *healthapp.Service
	Risk       *riskapp.Service
	Scheduling *schedulingapp.Service
	Quality    *qualityapp.Service
	Assistant  *assistantapp.Service

	// Postgres is set when the postgres driver is selected.
	Postgres *postgres.Store

	closers []func() error
}

// BuildContainer opens the configured store and event sinks and wires every service.
func BuildContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		return nil, errors.New("app: nil logger")
	}
	c := &Container{Config: cfg, Logger: logger}
	if err := c.openStore(ctx); err != nil {
		return nil, err
	}
	if err := c.openPublisher(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.wireServices(); err != nil {
		c.Close()
		return nil, err
	}
	metrics.Init(c.Store, logger)
	return c, nil
}

func (c *Container) openStore(ctx context.Context) error {
	switch c.Config.Store.Driver {
	case config.StorePostgres:
		store, err := postgres.Open(ctx, c.Config.Store.DSN)
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return err
		}
		repo := audit.NewRepository(store.DB())
		if err := repo.Migrate(ctx); err != nil {
			_ = store.Close()
			return err
		}
		c.Store = store
		c.Postgres = store
		c.Audit = repo
	default:
		fixture, err := c.Fixture()
		if err != nil {
			return err
		}
		store, err := memory.NewSeededStore(fixture)
		if err != nil {
			return fmt.Errorf("app: seed memory store: %w", err)
		}
		c.Store = store
		c.Audit = audit.NewZapLogger(c.Logger)
	}
	c.closers = append(c.closers, c.Store.Close)
	c.Logger.Info("signal store ready", zap.String("driver", c.Config.Store.Driver))
	return nil
}

// Fixture loads the configured seed file, or the built-in demo fleet.
func (c *Container) Fixture() (memory.Fixture, error) {
	if c.Config.Store.FixturePath != "" {
		return memory.LoadFixture(c.Config.Store.FixturePath)
	}
	return memory.DefaultFixture()
}

func (c *Container) openPublisher() error {
	publishers := []eventing.Publisher{eventing.NewLoggingPublisher(c.Logger)}
	if c.Config.NATS.URL != "" {
		conn, err := eventing.ConnectNATS(c.Config.NATS.URL, "fleet-risk-engine", c.Logger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func() error {
			return conn.Drain()
		})
		natsPublisher, err := eventing.NewNATSPublisher(conn, c.Config.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		publishers = append(publishers, natsPublisher)
	}
	if c.Config.Notify.WebhookURL != "" {
		notifier, err := c.notifier()
		if err != nil {
			return err
		}
		publishers = append(publishers, notifier)
	}
	c.Publisher = eventing.NewMultiPublisher(publishers...)
	return nil
}

func (c *Container) wireServices() error {
	cfg := c.Config
	scorer, err := health.NewScorer(cfg.Scoring.Thresholds)
	if err != nil {
		return err
	}
	if c.Health, err = healthapp.NewService(c.Store, scorer,
		healthapp.WithPublisher(c.Publisher),
		healthapp.WithLogger(c.Logger),
		healthapp.WithConcurrency(cfg.Scoring.RecomputeConcurrency),
	); err != nil {
		return err
	}
	if c.Risk, err = riskapp.NewService(c.Store); err != nil {
		return err
	}
	if c.Scheduling, err = schedulingapp.NewService(c.Store,
		schedulingapp.WithPublisher(c.Publisher),
		schedulingapp.WithLogger(c.Logger),
		schedulingapp.WithMaxAttempts(cfg.Scheduler.MaxCASAttempts),
		schedulingapp.WithUrgentWindow(cfg.Scheduler.UrgentWindow),
		schedulingapp.WithSweepWindow(cfg.Scheduler.SweepWindow),
		schedulingapp.WithDefaultTime(cfg.Scheduler.DefaultTime),
	); err != nil {
		return err
	}
	if c.Quality, err = qualityapp.NewService(c.Store,
		qualityapp.WithPublisher(c.Publisher),
		qualityapp.WithLogger(c.Logger),
	); err != nil {
		return err
	}

	builder, err := assistantapp.NewContextBuilder(c.Store)
	if err != nil {
		return err
	}
	responder, err := c.responder()
	if err != nil {
		return err
	}
	c.Assistant, err = assistantapp.NewService(builder, responder, assistantapp.WithLogger(c.Logger))
	return err
}

// responder returns nil when no API key is configured; chat then reports the assistant unavailable.
func (c *Container) responder() (assistant.Responder, error) {
	cfg := c.Config.Assistant
	if cfg.APIKey == "" {
		c.Logger.Warn("assistant responder disabled: no api key")
		return nil, nil
	}
	responder, err := openai.NewResponder(openai.Config{
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}, nil)
	if err != nil {
		return nil, err
	}
	return responder, nil
}

func (c *Container) notifier() (*notify.Notifier, error) {
	channel, err := notify.NewWebhookChannel(c.Config.Notify.WebhookURL)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate(c.Config.Notify.Template)
	if err != nil {
		return nil, fmt.Errorf("app: notify template: %w", err)
	}
	return notify.NewNotifier(c.Store, channel, tpl,
		notify.WithLogger(c.Logger),
		notify.WithCooldown(c.Config.Notify.Cooldown),
	)
}

// Close releases the store and event connections in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("close failed", zap.Error(err))
		}
	}
	c.closers = nil
}
