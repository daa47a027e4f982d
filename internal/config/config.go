package config

import (
	"fmt"
	"net/url"
	"time"
	_ "time/tzdata" // scheduler timezones must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server       ServerConfig       `mapstructure:",squash"`
	Database     DatabaseConfig     `mapstructure:",squash"`
	Redis        RedisConfig        `mapstructure:",squash"`
	Scheduler    SchedulerConfig    `mapstructure:",squash"`
	Logging      LoggingConfig      `mapstructure:",squash"`
	Business     BusinessConfig     `mapstructure:",squash"`
	Auth         AuthConfig         `mapstructure:",squash"`
	Gateway      GatewayConfig      `mapstructure:",squash"`
	Notification NotificationConfig `mapstructure:",squash"`
	Health       HealthConfig       `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	MigrationsPath  string        `mapstructure:"DATABASE_MIGRATIONS_PATH"`
	AutoMigrate     bool          `mapstructure:"DATABASE_AUTO_MIGRATE"`
}

type RedisConfig struct {
	URL      string `mapstructure:"REDIS_URL"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type SchedulerConfig struct {
	SweepSpec   string        `mapstructure:"SCHEDULER_SWEEP_SPEC"`
	Timezone    string        `mapstructure:"SCHEDULER_TIMEZONE"`
	Concurrency int           `mapstructure:"SCHEDULER_CONCURRENCY"`
	LockTTL     time.Duration `mapstructure:"SCHEDULER_LOCK_TTL"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	MinInstallments    int           `mapstructure:"EMI_MIN_INSTALLMENTS"`
	MaxInstallments    int           `mapstructure:"EMI_MAX_INSTALLMENTS"`
	ReminderWindowDays int           `mapstructure:"EMI_REMINDER_WINDOW_DAYS"`
	MaxAdvanceRetries  int           `mapstructure:"EMI_MAX_ADVANCE_RETRIES"`
	CourseCacheTTL     time.Duration `mapstructure:"EMI_COURSE_CACHE_TTL"`
	Currency           string        `mapstructure:"EMI_CURRENCY"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	Issuer    string `mapstructure:"AUTH_JWT_ISSUER"`
}

type GatewayConfig struct {
	MidtransServerKey    string        `mapstructure:"MIDTRANS_SERVER_KEY"`
	MidtransIsProduction bool          `mapstructure:"MIDTRANS_IS_PRODUCTION"`
	Timeout              time.Duration `mapstructure:"MIDTRANS_TIMEOUT"`
}

type NotificationConfig struct {
	Driver         string        `mapstructure:"NOTIFICATION_DRIVER"`
	SendgridAPIKey string        `mapstructure:"SENDGRID_API_KEY"`
	FromName       string        `mapstructure:"NOTIFICATION_FROM_NAME"`
	FromEmail      string        `mapstructure:"NOTIFICATION_FROM_EMAIL"`
	Timeout        time.Duration `mapstructure:"NOTIFICATION_TIMEOUT"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// .env values never override variables already present in the environment
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "emi_engine")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DATABASE_MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("DATABASE_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SCHEDULER_SWEEP_SPEC", "0 0 9 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("SCHEDULER_CONCURRENCY", 4)
	v.SetDefault("SCHEDULER_LOCK_TTL", "30m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EMI_MIN_INSTALLMENTS", 3)
	v.SetDefault("EMI_MAX_INSTALLMENTS", 24)
	v.SetDefault("EMI_REMINDER_WINDOW_DAYS", 7)
	v.SetDefault("EMI_MAX_ADVANCE_RETRIES", 3)
	v.SetDefault("EMI_COURSE_CACHE_TTL", "10m")
	v.SetDefault("EMI_CURRENCY", "INR")

	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("AUTH_JWT_ISSUER", "lms")

	v.SetDefault("MIDTRANS_SERVER_KEY", "")
	v.SetDefault("MIDTRANS_IS_PRODUCTION", false)
	v.SetDefault("MIDTRANS_TIMEOUT", "15s")

	v.SetDefault("NOTIFICATION_DRIVER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFICATION_FROM_NAME", "LMS")
	v.SetDefault("NOTIFICATION_FROM_EMAIL", "no-reply@example.com")
	v.SetDefault("NOTIFICATION_TIMEOUT", "10s")

	v.SetDefault("HEALTH_CHECK_TIMEOUT", "5s")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	if c.Business.MinInstallments <= 0 {
		return fmt.Errorf("EMI_MIN_INSTALLMENTS must be greater than 0")
	}

	if c.Business.MaxInstallments < c.Business.MinInstallments {
		return fmt.Errorf("EMI_MAX_INSTALLMENTS must not be lower than EMI_MIN_INSTALLMENTS")
	}

	if c.Business.ReminderWindowDays <= 0 {
		return fmt.Errorf("EMI_REMINDER_WINDOW_DAYS must be greater than 0")
	}

	if c.Business.MaxAdvanceRetries <= 0 {
		return fmt.Errorf("EMI_MAX_ADVANCE_RETRIES must be greater than 0")
	}

	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("SCHEDULER_CONCURRENCY must be greater than 0")
	}

	if _, err := cron.NewParser(cronParseOptions).Parse(c.Scheduler.SweepSpec); err != nil {
		return fmt.Errorf("SCHEDULER_SWEEP_SPEC must be a valid cron spec: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	if c.Notification.Timeout <= 0 {
		return fmt.Errorf("NOTIFICATION_TIMEOUT must be greater than 0")
	}

	if c.Notification.Driver == "sendgrid" && c.Notification.SendgridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required when NOTIFICATION_DRIVER=sendgrid")
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}

	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	return nil
}

// cronParseOptions matches cron.WithSeconds used by the scheduler.
const cronParseOptions = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr returns the redis host:port pair
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetMinimumFallback returns the smallest installment amount accepted when a course has no minimum configured
func (c *Config) GetMinimumFallback() decimal.Decimal {
	return decimal.NewFromInt(1)
}

// GetSchedulerLocation returns the scheduler timezone
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}
