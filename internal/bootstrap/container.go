package bootstrap

import (
	"context"
	"sync"
	"time"

	"signalwatch/internal/adapters/config"
	"signalwatch/internal/adapters/kafka"
	redisclient "signalwatch/internal/adapters/redis"
	"signalwatch/internal/adapters/sqldb"
	"signalwatch/internal/adapters/telegram"
	"signalwatch/internal/alerts"
	"signalwatch/internal/api"
	"signalwatch/internal/api/health"
	"signalwatch/internal/api/ws"
	"signalwatch/internal/countdown"
	"signalwatch/internal/domain/settings"
	"signalwatch/internal/feeds"
	"signalwatch/internal/normalize"
	"signalwatch/internal/novelty"
	"signalwatch/internal/services/dashboard"
	"signalwatch/internal/services/monitor"
	"signalwatch/internal/workers"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// SettingsStore is a settings repository that can report connectivity
type SettingsStore interface {
	settings.Repository
	health.Pinger
}

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker
	Version      string

	// Infrastructure Layer (settings stores, one of them in use)
	SQL   *sqldb.Client
	Redis *redisclient.Client

	Stores   *Stores
	Adapters *Adapters
	Engine   *Engine

	// Application Layer
	Application *Application

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Stores groups persistence
type Stores struct {
	Settings     SettingsStore
	SettingsName string
}

// Adapters groups the optional alert sinks
type Adapters struct {
	KafkaProducer *kafka.Producer
	Telegram      *telegram.Notifier
}

// Engine groups the polling and alerting pipeline
type Engine struct {
	Feeds      *feeds.Client
	Normalizer *normalize.Normalizer
	Ledger     *novelty.Ledger
	Dashboard  *dashboard.Store
	Pulser     *alerts.Pulser
	Fanout     *alerts.Fanout
	Queues     []*alerts.QueuedNotifier
	Dispatcher *alerts.Dispatcher
	Monitor    *monitor.Service
	Scheduler  *workers.Scheduler
	Countdown  *countdown.Presenter
	Settings   *settings.Service
}

// Application groups application layer components
type Application struct {
	Hub           *ws.Hub
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// NewContainer creates a new dependency container
func NewContainer(version string) *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Version:     version,
		Stores:      &Stores{},
		Adapters:    &Adapters{},
		Engine:      &Engine{},
		Application: &Application{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitAdapters()
	c.MustInitEngine()
	c.MustInitApplication()
}

// Start loads persisted settings and starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		c.Application.Hub.Run(c.Context)
	}()

	loadCtx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	feeds, err := c.Engine.Settings.Load(loadCtx)
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}

	if err := c.Engine.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}
	c.Log.Info("✓ Feed scheduler started", "feeds", len(feeds))

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		c.Engine.Countdown.Run(c.Context)
	}()

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Lifecycle.Shutdown(ShutdownTargets{
		Cancel:        c.Cancel,
		WG:            c.WG,
		HTTPServer:    c.Application.HTTPServer,
		Scheduler:     c.Engine.Scheduler,
		Pulser:        c.Engine.Pulser,
		AlertQueues:   c.Engine.Queues,
		KafkaProducer: c.Adapters.KafkaProducer,
		ErrorTracker:  c.ErrorTracker,
		SQL:           c.SQL,
		Redis:         c.Redis,
	}, c.Log)
}
