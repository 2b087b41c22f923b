package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eslsoft/spacedrep/internal/hlr"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string        `mapstructure:"driver"`
	DSN      string        `mapstructure:"dsn"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Name     string        `mapstructure:"name"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	SSLMode  string        `mapstructure:"sslmode"`
	LogSQL   bool          `mapstructure:"log_sql"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxConns int32         `mapstructure:"max_conns"`
	Retries  int           `mapstructure:"retries"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig holds the tunable parts of the review model.
type SchedulerConfig struct {
	ContentSetMultiplier    float64            `mapstructure:"content_set_multiplier"`
	TargetRecallProbability float64            `mapstructure:"target_recall_probability"`
	MinIntervalHours        float64            `mapstructure:"min_interval_hours"`
	MaxIntervalHours        float64            `mapstructure:"max_interval_hours"`
	DefaultQueueLimit       int                `mapstructure:"default_queue_limit"`
	MaxQueueLimit           int                `mapstructure:"max_queue_limit"`
	ExerciseTypeWeights     map[string]float64 `mapstructure:"exercise_type_weights"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// BreakerConfig controls the storage circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors_origins", []string{"*"})

	viper.SetDefault("database.driver", DriverSQLite)
	viper.SetDefault("database.dsn", "file:spacedrep.db?_busy_timeout=5000&_journal_mode=WAL")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "spacedrep")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.log_sql", false)
	viper.SetDefault("database.timeout", 5*time.Second)
	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("database.retries", 3)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	def := hlr.DefaultConfig()
	viper.SetDefault("scheduler.content_set_multiplier", def.ContentSetMultiplier)
	viper.SetDefault("scheduler.target_recall_probability", def.TargetRecallProbability)
	viper.SetDefault("scheduler.min_interval_hours", def.MinInterval)
	viper.SetDefault("scheduler.max_interval_hours", def.MaxInterval)
	viper.SetDefault("scheduler.default_queue_limit", 20)
	viper.SetDefault("scheduler.max_queue_limit", 100)
	viper.SetDefault("scheduler.exercise_type_weights", def.ExerciseTypeWeights)

	viper.SetDefault("metrics.namespace", "spacedrep")

	viper.SetDefault("breaker.enabled", true)
	viper.SetDefault("breaker.max_failures", 5)
	viper.SetDefault("breaker.open_timeout", 30*time.Second)
}

// DatabaseDriver returns the normalized driver name.
func (c *Config) DatabaseDriver() (string, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch driver {
	case "", "sqlite", DriverSQLite:
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
}

// DatabaseURL returns the connection string for the configured driver. An explicit
// DSN wins; PostgreSQL otherwise falls back to the discrete host settings.
func (c *Config) DatabaseURL() (string, error) {
	driver, err := c.DatabaseDriver()
	if err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		if driver == DriverPostgres || !isPostgresDSN(dsn) {
			return dsn, nil
		}
	}
	if driver == DriverSQLite {
		return "", errors.New("sqlite3 requires database.dsn")
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{c.Database.SSLMode}}.Encode(),
	}
	return u.String(), nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// HLRConfig builds a validated model configuration from the scheduler section.
func (c *Config) HLRConfig() (hlr.Config, error) {
	cfg := hlr.DefaultConfig()
	s := c.Scheduler
	if s.ContentSetMultiplier != 0 {
		cfg.ContentSetMultiplier = s.ContentSetMultiplier
	}
	if s.TargetRecallProbability != 0 {
		cfg.TargetRecallProbability = s.TargetRecallProbability
	}
	if s.MinIntervalHours != 0 {
		cfg.MinInterval = s.MinIntervalHours
	}
	if s.MaxIntervalHours != 0 {
		cfg.MaxInterval = s.MaxIntervalHours
	}
	if len(s.ExerciseTypeWeights) > 0 {
		weights := make(map[string]float64, len(s.ExerciseTypeWeights))
		for k, v := range s.ExerciseTypeWeights {
			weights[strings.ToLower(k)] = v
		}
		cfg.ExerciseTypeWeights = weights
	}
	if err := cfg.Validate(); err != nil {
		return hlr.Config{}, fmt.Errorf("scheduler config: %w", err)
	}
	return cfg, nil
}

// QueueLimits returns the default and maximum review queue sizes.
func (c *Config) QueueLimits() (def, maxLimit int) {
	def, maxLimit = c.Scheduler.DefaultQueueLimit, c.Scheduler.MaxQueueLimit
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if def <= 0 || def > maxLimit {
		def = min(20, maxLimit)
	}
	return def, maxLimit
}

// StorageTimeout bounds every persistence call made by the usecases.
func (c *Config) StorageTimeout() time.Duration {
	if c.Database.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Database.Timeout
}
