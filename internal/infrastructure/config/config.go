package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Email      EmailConfig      `mapstructure:"email"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	ChangeFeed ChangeFeedConfig `mapstructure:"change_feed"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Security   SecurityConfig   `mapstructure:"security"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production test"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds configuration for the HTTP trigger
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds the todo store connection settings.
// URL, when set, takes precedence over the discrete fields.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	PartitionKey    string        `mapstructure:"partition_key" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig holds Redis configuration for the sweep lease.
// An empty host disables the lease.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// EmailConfig holds the email transport configuration
type EmailConfig struct {
	Provider      string        `mapstructure:"provider" validate:"oneof=sendgrid log"`
	APIKey        string        `mapstructure:"api_key"`
	SenderAddress string        `mapstructure:"sender_address" validate:"required,email"`
	SenderName    string        `mapstructure:"sender_name"`
	SendTimeout   time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gte=0"`
	Signature     string        `mapstructure:"signature"`
}

// SchedulerConfig holds the timer trigger configuration
type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
	Concurrency int           `mapstructure:"concurrency" validate:"min=1"`
	ItemTimeout time.Duration `mapstructure:"item_timeout" validate:"gt=0"`
}

// ChangeFeedConfig holds the change trigger configuration
type ChangeFeedConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Channel      string        `mapstructure:"channel" validate:"required"`
	Consumer     string        `mapstructure:"consumer" validate:"required"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"min=1"`
	Retention    time.Duration `mapstructure:"retention"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format" validate:"oneof=json console"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// SecurityConfig holds HTTP trigger protection settings.
// An empty AuthSecret disables bearer token checks.
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	AuthSecret         string        `mapstructure:"auth_secret"`
	AuthIssuer         string        `mapstructure:"auth_issuer"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load loads configuration from the environment and an optional .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "todo-notifier")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "todos")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.partition_key", "family_todos")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "30s")
	v.SetDefault("database.migrations_path", "migrations")

	// Redis defaults
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lease_ttl", "10m")

	// Email defaults
	v.SetDefault("email.provider", "sendgrid")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.sender_address", "")
	v.SetDefault("email.sender_name", "Todo Notifications")
	v.SetDefault("email.send_timeout", "10s")
	v.SetDefault("email.rate_per_second", 5)
	v.SetDefault("email.signature", "Your Todo App")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.item_timeout", "30s")

	// Change feed defaults
	v.SetDefault("change_feed.enabled", true)
	v.SetDefault("change_feed.channel", "todo_changes")
	v.SetDefault("change_feed.consumer", "notifier")
	v.SetDefault("change_feed.poll_interval", "1m")
	v.SetDefault("change_feed.batch_size", 100)
	v.SetDefault("change_feed.retention", "168h")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.filename", "")

	// Security defaults
	v.SetDefault("security.cors_allowed_origins", "*")
	v.SetDefault("security.rate_limit_requests", 20)
	v.SetDefault("security.rate_limit_window", "1m")
	v.SetDefault("security.auth_secret", "")
	v.SetDefault("security.auth_issuer", "todo-app")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "todo_notifier")
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("app.debug", "APP_DEBUG")

	// Server
	v.BindEnv("server.enabled", "SERVER_ENABLED")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	// Database (store endpoint and credential)
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.ssl_mode", "DB_SSL_MODE")
	v.BindEnv("database.partition_key", "DB_PARTITION_KEY")
	v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	v.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	v.BindEnv("database.conn_max_idle_time", "DB_CONN_MAX_IDLE_TIME")
	v.BindEnv("database.migrations_path", "DB_MIGRATIONS_PATH")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.lease_ttl", "REDIS_LEASE_TTL")

	// Email (transport key and sender address)
	v.BindEnv("email.provider", "EMAIL_PROVIDER")
	v.BindEnv("email.api_key", "SENDGRID_API_KEY")
	v.BindEnv("email.sender_address", "SENDER_ADDRESS")
	v.BindEnv("email.sender_name", "SENDER_NAME")
	v.BindEnv("email.send_timeout", "EMAIL_SEND_TIMEOUT")
	v.BindEnv("email.rate_per_second", "EMAIL_RATE_PER_SECOND")
	v.BindEnv("email.signature", "EMAIL_SIGNATURE")

	// Scheduler
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval", "SCHEDULER_INTERVAL")
	v.BindEnv("scheduler.run_on_start", "SCHEDULER_RUN_ON_START")
	v.BindEnv("scheduler.concurrency", "SCHEDULER_CONCURRENCY")
	v.BindEnv("scheduler.item_timeout", "SCHEDULER_ITEM_TIMEOUT")

	// Change feed
	v.BindEnv("change_feed.enabled", "CHANGE_FEED_ENABLED")
	v.BindEnv("change_feed.channel", "CHANGE_FEED_CHANNEL")
	v.BindEnv("change_feed.consumer", "CHANGE_FEED_CONSUMER")
	v.BindEnv("change_feed.poll_interval", "CHANGE_FEED_POLL_INTERVAL")
	v.BindEnv("change_feed.batch_size", "CHANGE_FEED_BATCH_SIZE")
	v.BindEnv("change_feed.retention", "CHANGE_FEED_RETENTION")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Security
	v.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")
	v.BindEnv("security.auth_secret", "AUTH_SECRET")
	v.BindEnv("security.auth_issuer", "AUTH_ISSUER")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")
	v.BindEnv("metrics.namespace", "METRICS_NAMESPACE")
}

func validateConfig(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	if cfg.Database.URL == "" {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	} else if _, err := url.Parse(cfg.Database.URL); err != nil {
		return fmt.Errorf("database url: %w", err)
	}

	if cfg.Email.Provider == "sendgrid" && cfg.Email.APIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid provider")
	}

	if cfg.Redis.Host != "" && cfg.Redis.LeaseTTL <= 0 {
		return fmt.Errorf("redis lease ttl must be positive")
	}

	return nil
}

// GetDSN returns the database connection string
func (cfg *DatabaseConfig) GetDSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// GetMigrationURL returns the DSN in URL form, as golang-migrate expects
func (cfg *DatabaseConfig) GetMigrationURL() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.SSLMode),
	}
	return u.String()
}

// GetAddr returns the Redis address
func (cfg *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// LeaseEnabled reports whether sweeps coordinate through Redis
func (cfg *RedisConfig) LeaseEnabled() bool {
	return cfg.Host != ""
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// IsProduction returns true if the environment is production
func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}
