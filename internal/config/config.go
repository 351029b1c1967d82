package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Data modes select the backing data source once at startup.
const (
	DataModeLive    = "live"
	DataModeFixture = "fixture"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Data          DataConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	NATS          NATSConfig
	Cache         CacheConfig
	Realtime      RealtimeConfig
	Providers     ProvidersConfig
	RateLimit     RateLimitConfig
}

type ServerConfig struct {
	Port           int
	TLSPort        int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	EnableTLS      bool
	AutoCert       bool
	Domain         string
	CertFile       string
	KeyFile        string
	AutoCertDir    string
	Email          string
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type DataConfig struct {
	// Mode is either "live" (Postgres) or "fixture" (static data).
	Mode string
	// SimulateSchedule drives synthetic traffic in fixture mode; "off" disables it.
	SimulateSchedule string
}

type PostgresConfig struct {
	URL         string
	MaxConns    int
	AutoMigrate bool
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers     []string
	AlertTopic  string
	TopicPrefix string
	GroupPrefix string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AlertIndex string
}

type ClickhouseConfig struct {
	URL        string
	Username   string
	Password   string
	Database   string
	BatchSize  int
	FlushEvery time.Duration
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type CacheConfig struct {
	// Backend is one of memory, redis, postgres, bolt.
	Backend   string
	BoltPath  string
	Retention time.Duration
}

type RealtimeConfig struct {
	// Source is one of memory, postgres, kafka, nats, none.
	Source  string
	Channel string
}

type ProvidersConfig struct {
	VirusTotalBaseURL string
	VirusTotalAPIKey  string
	VirusTotalTTL     time.Duration
	OTXBaseURL        string
	OTXAPIKey         string
	OTXTTL            time.Duration
	HTTPTimeout       time.Duration
	RefreshSchedule   string
}

type RateLimitConfig struct {
	LookupsPerWindow int
	Window           time.Duration
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           GetEnvInt("SERVER_PORT", 8080),
			TLSPort:        GetEnvInt("SERVER_TLS_PORT", 8443),
			ReadTimeout:    GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   GetEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:    GetEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			EnableTLS:      GetEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:       GetEnvBool("SERVER_AUTO_CERT", false),
			Domain:         GetEnv("SERVER_DOMAIN", "localhost"),
			CertFile:       GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:        GetEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:    GetEnv("SERVER_AUTOCERT_DIR", "./certs"),
			Email:          GetEnv("SERVER_ACME_EMAIL", ""),
			AllowedOrigins: GetEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "https://*"}),
		},
		Logging: LoggingConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "console"),
		},
		Data: DataConfig{
			Mode:             strings.ToLower(GetEnv("DATA_MODE", DataModeFixture)),
			SimulateSchedule: GetEnv("FIXTURE_SIMULATE_SCHEDULE", "@every 5s"),
		},
		Postgres: PostgresConfig{
			URL:         GetEnv("DATABASE_URL", ""),
			MaxConns:    GetEnvInt("DATABASE_MAX_CONNS", 10),
			AutoMigrate: GetEnvBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:      GetEnv("REDIS_URL", ""),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvInt("REDIS_DB", 0),
			PoolSize: GetEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers:     GetEnvList("KAFKA_BROKERS", nil),
			AlertTopic:  GetEnv("KAFKA_ALERT_TOPIC", "secops.alerts"),
			TopicPrefix: GetEnv("KAFKA_CHANGE_TOPIC_PREFIX", "secops.changes"),
			GroupPrefix: GetEnv("KAFKA_GROUP_PREFIX", "secops-dashboard"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        GetEnv("ELASTICSEARCH_URL", ""),
			Username:   GetEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   GetEnv("ELASTICSEARCH_PASSWORD", ""),
			AlertIndex: GetEnv("ELASTICSEARCH_ALERT_INDEX", "threat-alerts"),
		},
		Clickhouse: ClickhouseConfig{
			URL:        GetEnv("CLICKHOUSE_URL", ""),
			Username:   GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password:   GetEnv("CLICKHOUSE_PASSWORD", ""),
			Database:   GetEnv("CLICKHOUSE_DATABASE", "default"),
			BatchSize:  GetEnvInt("CLICKHOUSE_BATCH_SIZE", 100),
			FlushEvery: GetEnvDuration("CLICKHOUSE_FLUSH_INTERVAL", 10*time.Second),
		},
		NATS: NATSConfig{
			URL:           GetEnv("NATS_URL", ""),
			SubjectPrefix: GetEnv("NATS_SUBJECT_PREFIX", "secops.changes"),
		},
		Cache: CacheConfig{
			Backend:   strings.ToLower(GetEnv("CACHE_BACKEND", "memory")),
			BoltPath:  GetEnv("CACHE_BOLT_PATH", "./data/lookup-cache.db"),
			Retention: GetEnvDuration("CACHE_RETENTION", 7*24*time.Hour),
		},
		Realtime: RealtimeConfig{
			Source:  strings.ToLower(GetEnv("REALTIME_SOURCE", "memory")),
			Channel: GetEnv("REALTIME_PG_CHANNEL", "table_changes"),
		},
		Providers: ProvidersConfig{
			VirusTotalBaseURL: GetEnv("VIRUSTOTAL_BASE_URL", "https://www.virustotal.com/api/v3"),
			VirusTotalAPIKey:  GetEnv("VIRUSTOTAL_API_KEY", ""),
			VirusTotalTTL:     GetEnvDuration("VIRUSTOTAL_CACHE_TTL", 24*time.Hour),
			OTXBaseURL:        GetEnv("OTX_BASE_URL", "https://otx.alienvault.com/api/v1"),
			OTXAPIKey:         GetEnv("OTX_API_KEY", ""),
			OTXTTL:            GetEnvDuration("OTX_CACHE_TTL", time.Hour),
			HTTPTimeout:       GetEnvDuration("PROVIDER_HTTP_TIMEOUT", 30*time.Second),
			RefreshSchedule:   GetEnv("OTX_REFRESH_SCHEDULE", "@every 5m"),
		},
		RateLimit: RateLimitConfig{
			LookupsPerWindow: GetEnvInt("LOOKUP_RATE_LIMIT", 30),
			Window:           GetEnvDuration("LOOKUP_RATE_WINDOW", time.Minute),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg
}

// Get returns the last loaded configuration, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

// Validate reports configuration combinations the factory cannot satisfy.
func (c *Config) Validate() error {
	switch c.Data.Mode {
	case DataModeLive:
		if c.Postgres.URL == "" {
			return fmt.Errorf("DATA_MODE=live requires DATABASE_URL")
		}
	case DataModeFixture:
	default:
		return fmt.Errorf("unknown DATA_MODE %q", c.Data.Mode)
	}
	switch c.Cache.Backend {
	case "memory", "bolt":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
		}
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if longest := max(c.Providers.VirusTotalTTL, c.Providers.OTXTTL); c.Cache.Retention > 0 && c.Cache.Retention < longest {
		return fmt.Errorf("CACHE_RETENTION %s is shorter than the longest cache TTL %s", c.Cache.Retention, longest)
	}
	switch c.Realtime.Source {
	case "memory", "none":
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("REALTIME_SOURCE=postgres requires DATABASE_URL")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("REALTIME_SOURCE=kafka requires KAFKA_BROKERS")
		}
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("REALTIME_SOURCE=nats requires NATS_URL")
		}
	default:
		return fmt.Errorf("unknown REALTIME_SOURCE %q", c.Realtime.Source)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsLive() bool {
	return c.Data.Mode == DataModeLive
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvList splits a comma separated variable, dropping empty items.
func GetEnvList(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
