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

// Config holds all application configuration loaded from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Scylla        ScyllaConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	JWT           JWTConfig
	OTP           OTPConfig
	Session       SessionConfig
	SMS           SMSConfig
	Email         EmailConfig
	Hashing       HashingConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Scheduler     SchedulerConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	Enabled    bool
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type OTPConfig struct {
	Length            int
	TTL               time.Duration
	MaxSendsPerHour   int
	MaxVerifyAttempts int
	RetentionAge      time.Duration
}

type SessionConfig struct {
	TTL      time.Duration
	CacheTTL time.Duration
}

type SMSConfig struct {
	Enabled    bool
	AccountSID string
	AuthToken  string
	From       string
}

type EmailConfig struct {
	Enabled bool
	Host    string
	Port    int
	User    string
	Pass    string
	From    string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperSecret       string
	PepperRotationDays int
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type SchedulerConfig struct {
	Enabled       bool
	SweepInterval time.Duration
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads configuration from .env (if present) and the environment.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 5000),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "127.0.0.1:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "agroguardian"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Kafka: KafkaConfig{
				Enabled: getEnvBool("KAFKA_ENABLED", false),
				Brokers: getEnvList("KAFKA_BROKERS", "127.0.0.1:9092"),
				Topic:   getEnv("KAFKA_AUTH_TOPIC", "auth-events"),
			},
			Elasticsearch: ElasticsearchConfig{
				Enabled:    getEnvBool("ELASTICSEARCH_ENABLED", false),
				URL:        getEnv("ELASTICSEARCH_URL", "http://127.0.0.1:9200"),
				Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
				AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "auth-audit"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
				URL:      getEnv("CLICKHOUSE_URL", "http://127.0.0.1:8123"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "agroguardian"),
			},
			JWT: JWTConfig{
				Secret: getEnv("JWT_SECRET", ""),
				Issuer: getEnv("JWT_ISSUER", "agroguardian-api"),
				TTL:    getEnvDuration("JWT_TTL", 30*24*time.Hour),
			},
			OTP: OTPConfig{
				Length:            getEnvInt("OTP_LENGTH", 6),
				TTL:               getEnvDuration("OTP_TTL", 10*time.Minute),
				MaxSendsPerHour:   getEnvInt("OTP_MAX_SENDS_PER_HOUR", 5),
				MaxVerifyAttempts: getEnvInt("OTP_MAX_VERIFY_ATTEMPTS", 5),
				RetentionAge:      getEnvDuration("OTP_RETENTION_AGE", 24*time.Hour),
			},
			Session: SessionConfig{
				TTL:      getEnvDuration("SESSION_TTL", 30*24*time.Hour),
				CacheTTL: getEnvDuration("SESSION_CACHE_TTL", 15*time.Minute),
			},
			SMS: SMSConfig{
				Enabled:    getEnvBool("SMS_ENABLED", false),
				AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
				AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
				From:       getEnv("TWILIO_PHONE_NUMBER", ""),
			},
			Email: EmailConfig{
				Enabled: getEnvBool("EMAIL_ENABLED", false),
				Host:    getEnv("EMAIL_HOST", ""),
				Port:    getEnvInt("EMAIL_PORT", 587),
				User:    getEnv("EMAIL_USER", ""),
				Pass:    getEnv("EMAIL_PASS", ""),
				From:    getEnv("EMAIL_FROM", "no-reply@agroguardian.in"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 2),
				PepperSecret:       getEnv("HASHING_PEPPER_SECRET", ""),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 90),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "ap-south-1"),
			},
			Bucketing: BucketingConfig{
				UserBuckets:  getEnvInt("USER_BUCKETS", 64),
				EventBuckets: getEnvInt("EVENT_BUCKETS", 256),
			},
			Scheduler: SchedulerConfig{
				Enabled:       getEnvBool("SCHEDULER_ENABLED", true),
				SweepInterval: getEnvDuration("SCHEDULER_SWEEP_INTERVAL", time.Hour),
			},
		}
	})
	return globalConfig
}

// Validate enforces the invariants a production deployment must satisfy.
// Development stays permissive so local runs work without secrets.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be set and at least 32 characters in production")
	}
	if c.Hashing.PepperSecret == "" {
		return fmt.Errorf("HASHING_PEPPER_SECRET is required in production")
	}
	if c.Server.EnableTLS && !c.Server.AutoCert {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("SERVER_CERT_FILE and SERVER_KEY_FILE are required when TLS is enabled without autocert")
		}
	}
	return nil
}

// Get returns the loaded global configuration.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
