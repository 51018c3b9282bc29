package bootstrap

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signalwatch/internal/adapters/config"
	errnoop "signalwatch/internal/adapters/errors/noop"
	"signalwatch/internal/adapters/errors/sentry"
	"signalwatch/internal/adapters/kafka"
	redisclient "signalwatch/internal/adapters/redis"
	"signalwatch/internal/adapters/sqldb"
	"signalwatch/internal/adapters/telegram"
	"signalwatch/internal/alerts"
	"signalwatch/internal/api"
	"signalwatch/internal/api/audio"
	"signalwatch/internal/api/health"
	"signalwatch/internal/api/rest"
	"signalwatch/internal/api/ws"
	"signalwatch/internal/countdown"
	"signalwatch/internal/domain/settings"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/events"
	"signalwatch/internal/feeds"
	"signalwatch/internal/metrics"
	"signalwatch/internal/normalize"
	"signalwatch/internal/novelty"
	"signalwatch/internal/repository/memory"
	redisrepo "signalwatch/internal/repository/redis"
	sqlrepo "signalwatch/internal/repository/sqldb"
	"signalwatch/internal/services/dashboard"
	"signalwatch/internal/services/monitor"
	"signalwatch/internal/workers"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	c.ErrorTracker = provideErrorTracker(cfg, c.Version, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the settings store selected by SETTINGS_BACKEND
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	cfg := c.Config.Settings
	c.Stores.SettingsName = cfg.Backend

	switch cfg.Backend {
	case sqldb.DriverSQLite, sqldb.DriverPostgres:
		c.Log.Info("Opening settings database...", "driver", cfg.Backend)
		client, err := sqldb.NewClient(ctx, cfg)
		if err != nil {
			c.Log.Fatalf("failed to open settings database: %v", err)
		}
		c.SQL = client
		c.Stores.Settings = sqlrepo.NewSettingsRepository(client.DB(), cfg.Backend)

	case "redis":
		c.Log.Info("Connecting to Redis...")
		client, err := redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Redis = client
		c.Stores.Settings = redisrepo.NewSettingsRepository(client.Client())

	case "memory":
		c.Log.Warn("Settings are kept in memory and lost on restart")
		c.Stores.Settings = memory.NewSettingsRepository()

	default:
		c.Log.Fatalf("unknown settings backend %q", cfg.Backend)
	}

	c.Log.Info("✓ Settings store ready", "backend", cfg.Backend)
}

// ========================================
// Phase 3: Alert sinks
// ========================================

// MustInitAdapters creates the optional Kafka and Telegram sinks
func (c *Container) MustInitAdapters() {
	if c.Config.Kafka.Enabled() {
		c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	} else {
		c.Log.Info("Kafka alert publishing disabled")
	}

	tg, err := telegram.NewNotifier(telegram.Config{
		Token:      c.Config.Telegram.BotToken,
		ChatID:     c.Config.Telegram.ChatID,
		RatePerSec: c.Config.Telegram.RatePerSec,
	})
	if err != nil {
		c.Log.Warnf("Telegram notifier unavailable: %v", err)
		tg, _ = telegram.NewNotifier(telegram.Config{})
	}
	c.Adapters.Telegram = tg
	if tg.Enabled() {
		c.Log.Info("✓ Telegram notifier initialized")
	}
}

// ========================================
// Phase 4: Engine
// ========================================

// MustInitEngine wires fetch, normalize, novelty and alerting
func (c *Container) MustInitEngine() {
	cfg := c.Config

	defaults, err := cfg.Feeds.DefaultFeeds()
	if err != nil {
		c.Log.Fatalf("failed to load default feeds: %v", err)
	}

	c.Engine.Feeds = feeds.NewClient(feeds.Config{
		Timeout:   cfg.Feeds.FetchTimeout,
		UserAgent: cfg.Feeds.UserAgent,
	}, nil)
	c.Engine.Normalizer = normalize.New(normalize.Options{DefaultMidpoint: cfg.Feeds.DefaultMidpoint})
	c.Engine.Ledger = novelty.NewLedger(cfg.Novelty.Horizon, cfg.Novelty.Cap, nil)
	c.Engine.Dashboard = dashboard.NewStore(cfg.Dashboard.RecentLimit)

	// snapshot reads c.Engine lazily, the scheduler does not exist yet
	c.Application.Hub = ws.NewHub(c.snapshot)
	c.Engine.Dashboard.Subscribe(c.Application.Hub)

	c.Engine.Pulser = alerts.NewPulser(alerts.PulseConfig{
		Duration:  cfg.Alerts.PulseDuration,
		ToneEvery: cfg.Alerts.ToneEvery,
	}, c.Application.Hub)

	// Network sinks deliver from their own queues, the feed goroutine only pays for the hub
	c.Engine.Fanout = alerts.NewFanout(alerts.NamedNotifier{Name: "dashboard", Notifier: c.Application.Hub})
	if c.Adapters.Telegram.Enabled() {
		c.addQueuedSink("telegram", c.Adapters.Telegram)
	} else {
		c.Engine.Fanout.Add("telegram", c.Adapters.Telegram)
	}
	if c.Adapters.KafkaProducer != nil {
		c.addQueuedSink("kafka", events.NewAlertPublisher(c.Adapters.KafkaProducer, cfg.Kafka.AlertTopic, cfg.App.Name))
	}

	c.Engine.Dispatcher = alerts.NewDispatcher(c.Engine.Fanout, c.Engine.Pulser, cfg.Alerts.PreviewLimit)
	c.Engine.Monitor = monitor.NewService(
		c.Engine.Normalizer,
		c.Engine.Dashboard,
		c.Engine.Ledger,
		c.Engine.Dispatcher,
		c.Log,
	)

	c.Engine.Scheduler = workers.NewScheduler(c.Engine.Feeds, c.Engine.Monitor, workers.Options{
		UnreachableAfter: cfg.Feeds.UnreachableAfter,
		ShutdownTimeout:  cfg.Feeds.ShutdownTimeout,
	})
	prometheus.MustRegister(metrics.NewFeedStateCollector(c.Engine.Scheduler))

	c.Engine.Countdown = countdown.NewPresenter(c.Engine.Scheduler, c.Application.Hub)

	c.Engine.Settings = settings.NewService(
		c.Stores.Settings,
		defaults,
		&feedApplier{scheduler: c.Engine.Scheduler, cards: c.Engine.Dashboard},
		c.Engine.Dashboard,
		c.Log,
	)

	c.Log.Info("✓ Engine initialized", "default_feeds", len(defaults), "sinks", c.Engine.Fanout.Sinks())
}

// ========================================
// Phase 5: Transport
// ========================================

// MustInitApplication builds the HTTP server
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.New(
		c.Log.With("component", "health"),
		c.Stores.Settings,
		c.Stores.SettingsName,
		c.Engine.Scheduler,
		c.Config.App.Name,
		c.Version,
	)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:         c.Config.HTTP.Port,
		ServiceName:  c.Config.App.Name,
		Version:      c.Version,
		ReadTimeout:  c.Config.HTTP.ReadTimeout,
		WriteTimeout: c.Config.HTTP.WriteTimeout,
	}, api.Handlers{
		Health:   c.Application.HealthHandler,
		Feeds:    rest.NewFeedsHandler(c.Engine.Dashboard, c.Engine.Scheduler),
		Settings: rest.NewSettingsHandler(c.Engine.Settings),
		Hub:      c.Application.Hub,
		Beep:     audio.NewHandler(),
	}, c.Log.With("component", "http"))
}

// Snapshot is the first frame a dashboard client receives
type Snapshot struct {
	Feeds     []dashboard.FeedView `json:"feeds"`
	Countdown map[string]int       `json:"countdown"`
}

func (c *Container) snapshot() any {
	return Snapshot{
		Feeds:     c.Engine.Dashboard.Snapshot(),
		Countdown: countdown.Snapshot(c.Engine.Scheduler.States(), time.Now()),
	}
}

func (c *Container) addQueuedSink(name string, n alerts.Notifier) {
	q := alerts.NewQueuedNotifier(name, n, alerts.DefaultQueueSize, alerts.DefaultQueueTimeout)
	c.Engine.Queues = append(c.Engine.Queues, q)
	c.Engine.Fanout.Add(name, q)
}

// feedApplier registers a dashboard card for every feed before scheduling it
type feedApplier struct {
	scheduler *workers.Scheduler
	cards     *dashboard.Store
}

func (a *feedApplier) Apply(sources []signal.FeedSource) error {
	for _, src := range sources {
		a.cards.Register(src)
	}
	return a.scheduler.Apply(sources)
}

func provideErrorTracker(cfg *config.Config, release string, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking, release)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	tracker.SetTag("service", cfg.App.Name)
	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.AlertTopic)
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		WriteTimeout: 10 * time.Second,
	})
	log.Info("✓ Kafka producer initialized")
	return producer
}
