// Package config loads configuration for the controller and worker
// binaries from the environment, with an optional env-format file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Certs    CertsConfig    `mapstructure:"certs"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds controller HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the controller listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// WorkerConfig holds the worker host's identity and loop tuning.
type WorkerConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	Address        string        `mapstructure:"address"`
	MaxTenants     int           `mapstructure:"max_tenants"`
	PortRangeStart int           `mapstructure:"port_range_start"`
	PortRangeEnd   int           `mapstructure:"port_range_end"`

	WorkspaceRoot     string        `mapstructure:"workspace_root"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	JobStaleAfter     time.Duration `mapstructure:"job_stale_after"`
	JanitorInterval   time.Duration `mapstructure:"janitor_interval"`

	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// ProxyConfig holds reverse proxy integration settings.
type ProxyConfig struct {
	ConfDir   string `mapstructure:"conf_dir"`
	CheckCmd  string `mapstructure:"check_cmd"`
	ReloadCmd string `mapstructure:"reload_cmd"`
}

// CertsConfig holds certificate issuance settings.
type CertsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
	Email   string `mapstructure:"email"`
	Webroot string `mapstructure:"webroot"`
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// MonitorConfig holds usage monitor settings.
type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
}

// BackupConfig holds the external backup tool invocation.
type BackupConfig struct {
	Command string `mapstructure:"command"`
}

// SecretsConfig holds the credential sealing key.
type SecretsConfig struct {
	SealingKey string `mapstructure:"sealing_key"` // hex, 32 bytes
}

// IntakeConfig holds the per-client intake rate limit.
type IntakeConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServiceName   string `mapstructure:"service_name"`
	CollectorAddr string `mapstructure:"collector_addr"`
}

// Load loads configuration from environment variables and an optional
// env-format file. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "storefleet")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 7070)

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "storefleet")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")

	// Worker defaults
	v.SetDefault("WORKER_MAX_TENANTS", 50)
	v.SetDefault("WORKER_PORT_RANGE_START", 10000)
	v.SetDefault("WORKER_PORT_RANGE_END", 10999)
	v.SetDefault("WORKER_WORKSPACE_ROOT", "/var/lib/storefleet/stores")
	v.SetDefault("WORKER_POLL_INTERVAL", "1s")
	v.SetDefault("WORKER_MAX_BACKOFF", "30s")
	v.SetDefault("WORKER_HEARTBEAT_INTERVAL", "15s")
	v.SetDefault("WORKER_JOB_STALE_AFTER", "30m")
	v.SetDefault("WORKER_JANITOR_INTERVAL", "5m")
	v.SetDefault("WORKER_HEALTH_TIMEOUT", "3m")
	v.SetDefault("WORKER_HEALTH_INTERVAL", "5s")

	// Proxy defaults
	v.SetDefault("PROXY_CONF_DIR", "/etc/nginx/storefleet.d")
	v.SetDefault("PROXY_CHECK_CMD", "nginx -t")
	v.SetDefault("PROXY_RELOAD_CMD", "nginx -s reload")

	// Certs defaults
	v.SetDefault("CERTS_ENABLED", false)
	v.SetDefault("CERTS_COMMAND", "certbot")
	v.SetDefault("CERTS_WEBROOT", "/var/www/acme")

	// Monitor defaults
	v.SetDefault("MONITOR_INTERVAL", "15m")
	v.SetDefault("MONITOR_ALERT_COOLDOWN", "24h")

	// Backup defaults
	v.SetDefault("BACKUP_COMMAND", "storefleet-backup")

	// Intake defaults
	v.SetDefault("INTAKE_REQUESTS_PER_MINUTE", 10.0)
	v.SetDefault("INTAKE_BURST", 5)

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "storefleet")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")

	// Worker
	cfg.Worker.ServerName = v.GetString("WORKER_SERVER_NAME")
	cfg.Worker.Address = v.GetString("WORKER_ADDRESS")
	cfg.Worker.MaxTenants = v.GetInt("WORKER_MAX_TENANTS")
	cfg.Worker.PortRangeStart = v.GetInt("WORKER_PORT_RANGE_START")
	cfg.Worker.PortRangeEnd = v.GetInt("WORKER_PORT_RANGE_END")
	cfg.Worker.WorkspaceRoot = v.GetString("WORKER_WORKSPACE_ROOT")
	cfg.Worker.PollInterval = v.GetDuration("WORKER_POLL_INTERVAL")
	cfg.Worker.MaxBackoff = v.GetDuration("WORKER_MAX_BACKOFF")
	cfg.Worker.HeartbeatInterval = v.GetDuration("WORKER_HEARTBEAT_INTERVAL")
	cfg.Worker.JobStaleAfter = v.GetDuration("WORKER_JOB_STALE_AFTER")
	cfg.Worker.JanitorInterval = v.GetDuration("WORKER_JANITOR_INTERVAL")
	cfg.Worker.HealthTimeout = v.GetDuration("WORKER_HEALTH_TIMEOUT")
	cfg.Worker.HealthInterval = v.GetDuration("WORKER_HEALTH_INTERVAL")

	// Proxy
	cfg.Proxy.ConfDir = v.GetString("PROXY_CONF_DIR")
	cfg.Proxy.CheckCmd = v.GetString("PROXY_CHECK_CMD")
	cfg.Proxy.ReloadCmd = v.GetString("PROXY_RELOAD_CMD")

	// Certs
	cfg.Certs.Enabled = v.GetBool("CERTS_ENABLED")
	cfg.Certs.Command = v.GetString("CERTS_COMMAND")
	cfg.Certs.Email = v.GetString("CERTS_EMAIL")
	cfg.Certs.Webroot = v.GetString("CERTS_WEBROOT")

	// Notify
	cfg.Notify.WebhookURL = v.GetString("NOTIFY_WEBHOOK_URL")

	// Monitor
	cfg.Monitor.Interval = v.GetDuration("MONITOR_INTERVAL")
	cfg.Monitor.AlertCooldown = v.GetDuration("MONITOR_ALERT_COOLDOWN")

	// Backup
	cfg.Backup.Command = v.GetString("BACKUP_COMMAND")

	// Secrets
	cfg.Secrets.SealingKey = v.GetString("SECRETS_SEALING_KEY")

	// Intake
	cfg.Intake.RequestsPerMinute = v.GetFloat64("INTAKE_REQUESTS_PER_MINUTE")
	cfg.Intake.Burst = v.GetInt("INTAKE_BURST")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Worker.PortRangeStart >= c.Worker.PortRangeEnd {
		return fmt.Errorf("invalid worker port range: %d-%d",
			c.Worker.PortRangeStart, c.Worker.PortRangeEnd)
	}
	if c.Intake.RequestsPerMinute < 0 {
		return fmt.Errorf("invalid intake rate: %f", c.Intake.RequestsPerMinute)
	}
	return nil
}

// ValidateWorker checks the fields only the worker binary needs.
func (c *Config) ValidateWorker() error {
	if c.Worker.ServerName == "" {
		return fmt.Errorf("worker server_name is required (env: WORKER_SERVER_NAME)")
	}
	if c.Worker.Address == "" {
		return fmt.Errorf("worker address is required (env: WORKER_ADDRESS)")
	}
	if c.Secrets.SealingKey == "" {
		return fmt.Errorf("secrets sealing_key is required (env: SECRETS_SEALING_KEY)")
	}
	return nil
}
