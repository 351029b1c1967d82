package factory

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/client"
	"secops-dashboard/internal/config"
	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/migrate"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/provider/otx"
	"secops-dashboard/internal/provider/virustotal"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/repository"
	chrepo "secops-dashboard/internal/repository/clickhouse"
	"secops-dashboard/internal/repository/elastic"
	"secops-dashboard/internal/repository/fixture"
	kafkarepo "secops-dashboard/internal/repository/kafka"
	natsrepo "secops-dashboard/internal/repository/nats"
	"secops-dashboard/internal/repository/postgres"
	redisrepo "secops-dashboard/internal/repository/redis"
	"secops-dashboard/internal/service"
	"secops-dashboard/internal/tls"
	"secops-dashboard/internal/util"
	"secops-dashboard/internal/ws"
)

const initTimeout = 30 * time.Second

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager
	registry   *prometheus.Registry
	metrics    *metrics.Metrics

	// Clients
	postgresClient   *client.PostgresClient
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	natsClient       *client.NATSClient
	boltDB           *cache.BoltDB

	// Repositories
	dataSource     repository.DataSource
	memoryEvents   *realtime.MemorySource
	fixtureSource  *fixture.Source
	resolvers      map[string]*cache.Resolver
	pruners        map[string]cache.Pruner
	alertIndex     *elastic.AlertIndex
	alertPublisher *kafkarepo.AlertPublisher
	auditRecorder  *chrepo.AuditRecorder
	rateLimiter    *redisrepo.RateLimitCache

	// Providers
	virusTotal *virustotal.Client
	otx        *otx.Client

	// Realtime
	hub      *ws.Hub
	bridge   *realtime.Bridge
	feeds    *realtime.Feeds
	notifier realtime.Notifier

	serviceFactory *service.ServiceFactory
	refresher      *service.Refresher

	bgCancel  context.CancelFunc
	bgWG      sync.WaitGroup
	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := &Factory{
		config:    cfg,
		registry:  registry,
		metrics:   metrics.New(registry),
		resolvers: make(map[string]*cache.Resolver),
		pruners:   make(map[string]cache.Pruner),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg.Server)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if err := factory.initializeClients(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeRepositories(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	factory.initializeProviders()
	factory.initializeRealtime(ctx)
	if err := factory.startBackground(); err != nil {
		factory.Close()
		return nil, err
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("data_mode", factory.dataSource.Mode()),
		util.String("cache_backend", cfg.Cache.Backend),
		util.String("realtime_source", cfg.Realtime.Source),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
	)

	return factory, nil
}

func (f *Factory) needsPostgres() bool {
	return f.config.IsLive() || f.config.Cache.Backend == "postgres" || f.config.Realtime.Source == "postgres"
}

// initializeClients connects every configured backend. Backends the
// configuration depends on fail startup; optional ones only fail it in
// production.
func (f *Factory) initializeClients(ctx context.Context) error {
	cfg := f.config
	var initErrors []error

	// Postgres
	if f.needsPostgres() {
		pg, err := client.NewPostgresClient(ctx, cfg, util.Named("postgres"))
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		f.postgresClient = pg
		util.Info("Postgres client initialized and healthy")
	}

	// Redis
	if cfg.Redis.URL != "" {
		if c, err := client.NewRedisClient(cfg, util.Named("redis")); err != nil {
			if cfg.Cache.Backend == "redis" {
				return fmt.Errorf("redis: %w", err)
			}
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		if producer, err := client.NewKafkaProducer(cfg, util.Named("kafka")); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without alert events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if cfg.Elasticsearch.URL != "" {
		if c, err := client.NewElasticsearchClient(cfg, util.Named("elasticsearch")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else if err := c.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			f.esClient = c
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if cfg.Clickhouse.URL != "" {
		if c, err := client.NewClickHouseClient(cfg, util.Named("clickhouse")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else if err := c.HealthCheck(ctx); err != nil {
			c.Close()
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			f.clickhouseClient = c
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// NATS
	if cfg.NATS.URL != "" {
		if c, err := client.NewNATSClient(cfg, util.Named("nats")); err != nil {
			if cfg.Realtime.Source == "nats" {
				return fmt.Errorf("nats: %w", err)
			}
			initErrors = append(initErrors, fmt.Errorf("nats: %w", err))
		} else {
			f.natsClient = c
		}
	}

	if len(initErrors) > 0 {
		if cfg.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeRepositories applies migrations and builds the data source, the
// lookup caches and the optional alert index, publisher and audit trail.
func (f *Factory) initializeRepositories(ctx context.Context) error {
	cfg := f.config

	if f.postgresClient != nil && cfg.Postgres.AutoMigrate {
		runner, err := migrate.New(f.postgresClient.URL(), util.Named("migrate"))
		if err != nil {
			return err
		}
		if err := runner.Ensure(ctx); err != nil {
			return err
		}
	}

	if cfg.IsLive() {
		f.dataSource = postgres.New(f.postgresClient.Pool)
	} else {
		if cfg.Realtime.Source == "memory" {
			f.memoryEvents = realtime.NewMemorySource()
		}
		f.fixtureSource = fixture.New(f.memoryEvents, nil)
		f.dataSource = f.fixtureSource
	}

	if cfg.Cache.Backend == "bolt" {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.BoltPath), 0o700); err != nil {
			return fmt.Errorf("create bolt cache directory: %w", err)
		}
		db, err := cache.OpenBolt(cfg.Cache.BoltPath)
		if err != nil {
			return err
		}
		f.boltDB = db
	}
	for _, ns := range []string{virustotal.Name, otx.Name} {
		store, err := f.cacheStore(ns)
		if err != nil {
			return fmt.Errorf("cache store %s: %w", ns, err)
		}
		f.resolvers[ns] = cache.NewResolver(store, ns, util.Named("cache"), f.metrics)
		if p, ok := store.(cache.Pruner); ok {
			f.pruners[ns] = p
		}
	}

	if f.esClient != nil {
		index := elastic.NewAlertIndex(f.esClient, cfg.Elasticsearch.AlertIndex)
		if err := index.EnsureIndex(ctx); err != nil {
			util.Warn("Alert index unavailable - search disabled", util.ErrorField(err))
		} else {
			f.alertIndex = index
		}
	}

	if f.kafkaProducer != nil {
		f.alertPublisher = kafkarepo.NewAlertPublisher(f.kafkaProducer, cfg.Kafka.AlertTopic)
	}

	if f.clickhouseClient != nil {
		recorder := chrepo.NewAuditRecorder(f.clickhouseClient, cfg.Clickhouse.BatchSize, cfg.Clickhouse.FlushEvery, util.Named("audit"))
		if err := recorder.EnsureSchema(ctx); err != nil {
			util.Warn("Lookup audit table unavailable - audit disabled", util.ErrorField(err))
		} else {
			f.auditRecorder = recorder
		}
	}

	if f.redisClient != nil {
		f.rateLimiter = redisrepo.NewRateLimitCache(f.redisClient,
			cfg.RateLimit.LookupsPerWindow, cfg.RateLimit.Window, util.Named("ratelimit"))
	}

	return nil
}

func (f *Factory) cacheStore(namespace string) (cache.Store, error) {
	switch f.config.Cache.Backend {
	case "redis":
		return redisrepo.NewCacheStore(f.redisClient, namespace, f.config.Cache.Retention, util.Named("cache")), nil
	case "postgres":
		return postgres.NewCacheStore(f.postgresClient.Pool, namespace), nil
	case "bolt":
		store, err := f.boltDB.Store(namespace)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

func (f *Factory) initializeProviders() {
	p := f.config.Providers
	f.virusTotal = virustotal.NewClient(virustotal.Options{
		BaseURL:    p.VirusTotalBaseURL,
		APIKey:     p.VirusTotalAPIKey,
		TTL:        p.VirusTotalTTL,
		HTTPClient: &http.Client{Timeout: p.HTTPTimeout},
		Resolver:   f.resolvers[virustotal.Name],
		Logger:     util.Named(virustotal.Name),
		Metrics:    f.metrics,
	})
	f.otx = otx.NewClient(otx.Options{
		BaseURL:    p.OTXBaseURL,
		APIKey:     p.OTXAPIKey,
		TTL:        p.OTXTTL,
		HTTPClient: &http.Client{Timeout: p.HTTPTimeout},
		Resolver:   f.resolvers[otx.Name],
		Logger:     util.Named(otx.Name),
		Metrics:    f.metrics,
	})
}

// initializeRealtime wires the change-event source through the bridge into
// the live feeds, which broadcast to WebSocket clients.
func (f *Factory) initializeRealtime(ctx context.Context) {
	logger := util.Named("realtime")
	f.hub = ws.NewHub(util.Named("ws"), f.metrics)

	f.notifier = realtime.Notifiers{
		realtime.NewLogNotifier(logger),
		realtime.NewBroadcastNotifier(f.hub),
	}
	f.feeds = realtime.NewFeeds(f.notifier, f.hub, logger)
	f.seedFeeds(ctx)

	f.bridge = realtime.NewBridge(f.eventSource(logger), logger, f.metrics)
	f.feeds.Start(f.bridge)
}

func (f *Factory) eventSource(logger *zap.Logger) realtime.EventSource {
	cfg := f.config
	switch cfg.Realtime.Source {
	case "memory":
		if f.memoryEvents != nil {
			return f.memoryEvents
		}
		logger.Warn("In-process change events are only produced in fixture mode")
	case "postgres":
		return postgres.NewNotifySource(f.postgresClient.Pool, cfg.Realtime.Channel, logger)
	case "kafka":
		return kafkarepo.NewChangeSource(cfg, logger)
	case "nats":
		return natsrepo.NewChangeSource(f.natsClient, cfg.NATS.SubjectPrefix, logger)
	}
	return nil
}

// seedFeeds loads the current rows so clients see data before the first
// change event.
func (f *Factory) seedFeeds(ctx context.Context) {
	if rows, err := f.dataSource.ListAlerts(ctx, realtime.AlertFeedSize); err != nil {
		util.Warn("Failed to seed alert feed", util.ErrorField(err))
	} else {
		alerts := make([]models.ThreatAlert, 0, len(rows))
		for _, r := range rows {
			alerts = append(alerts, r.ToAlert())
		}
		f.feeds.Alerts.Reset(alerts)
	}

	if rows, err := f.dataSource.ListTraffic(ctx, realtime.TrafficFeedSize); err != nil {
		util.Warn("Failed to seed traffic feed", util.ErrorField(err))
	} else {
		records := make([]models.TrafficRecord, 0, len(rows))
		for _, r := range rows {
			records = append(records, r.ToRecord())
		}
		f.feeds.Traffic.Reset(records)
	}

	if rows, err := f.dataSource.ListAnomalies(ctx, realtime.AnomalyFeedSize); err != nil {
		util.Warn("Failed to seed anomaly feed", util.ErrorField(err))
	} else {
		samples := make([]models.AnomalySample, 0, len(rows))
		for _, r := range rows {
			samples = append(samples, r.ToSample())
		}
		f.feeds.Anomalies.Reset(samples)
	}
}

// startBackground runs the audit flusher and the refresh schedule.
func (f *Factory) startBackground() error {
	ctx, cancel := context.WithCancel(context.Background())
	f.bgCancel = cancel

	if f.auditRecorder != nil {
		f.bgWG.Add(1)
		go func() {
			defer f.bgWG.Done()
			f.auditRecorder.Run(ctx)
		}()
	}

	f.refresher = service.NewRefresher(f.ServiceFactory().LookupService(),
		f.config.Providers.RefreshSchedule, f.config.Cache.Retention, util.Named("refresher"))
	for ns, p := range f.pruners {
		f.refresher.AddPruner(ns, p)
	}
	if f.fixtureSource != nil && f.memoryEvents != nil && f.config.Data.SimulateSchedule != "off" {
		f.refresher.SetSimulator(f.config.Data.SimulateSchedule, fixture.NewSimulator(f.fixtureSource, time.Now().UnixNano()))
	}
	if err := f.refresher.Start(); err != nil {
		return fmt.Errorf("failed to start refresher: %w", err)
	}
	return nil
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		deps := service.Dependencies{
			Source:     f.dataSource,
			Notifier:   f.notifier,
			VirusTotal: f.virusTotal,
			OTX:        f.otx,
		}
		// nil pointers must not become non-nil interfaces
		if f.alertIndex != nil {
			deps.Indexer = f.alertIndex
		}
		if f.alertPublisher != nil {
			deps.Publisher = f.alertPublisher
		}
		if f.auditRecorder != nil {
			deps.Recorder = f.auditRecorder
		}
		f.serviceFactory = service.NewServiceFactory(deps, util.Named("service"))
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck checks every initialized backend concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
	)
	checks := map[string]func(context.Context) error{
		"datasource": f.dataSource.HealthCheck,
	}
	if f.postgresClient != nil {
		checks["postgres"] = f.postgresClient.HealthCheck
	}
	if f.redisClient != nil {
		checks["redis"] = f.redisClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer.HealthCheck
	}
	if f.esClient != nil {
		checks["elasticsearch"] = f.esClient.HealthCheck
	}
	if f.clickhouseClient != nil {
		checks["clickhouse"] = f.clickhouseClient.HealthCheck
	}
	if f.natsClient != nil {
		checks["nats"] = f.natsClient.HealthCheck
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			err := check(gctx)
			mu.Lock()
			healthErrors[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if f.refresher != nil {
			if err := f.refresher.Stop(ctx); err != nil {
				util.Warn("Refresher did not stop cleanly", util.ErrorField(err))
			}
		}
		if f.feeds != nil {
			f.feeds.Stop()
		}
		if f.bridge != nil {
			f.bridge.Close()
		}
		if f.hub != nil {
			f.hub.Close()
		}
		if f.memoryEvents != nil {
			f.memoryEvents.Close()
		}

		// the audit recorder flushes on cancel
		if f.bgCancel != nil {
			f.bgCancel()
		}
		f.bgWG.Wait()

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.natsClient != nil {
			f.natsClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.boltDB != nil {
			if err := f.boltDB.Close(); err != nil {
				util.Error("Failed to close bolt cache", util.ErrorField(err))
			}
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
			util.Info("Postgres pool closed")
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Metrics() *metrics.Metrics {
	return f.metrics
}

func (f *Factory) Registry() *prometheus.Registry {
	return f.registry
}

func (f *Factory) Hub() *ws.Hub {
	return f.hub
}

func (f *Factory) Feeds() *realtime.Feeds {
	return f.feeds
}

// RateLimiter is nil when Redis is not configured.
func (f *Factory) RateLimiter() *redisrepo.RateLimitCache {
	return f.rateLimiter
}
