// Package config loads and validates the catalog configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the RCAT_ prefix (e.g., RCAT_DATABASE_HOST
// overrides database.host in the YAML). A .env file in the working directory is
// loaded into the process environment first, so local development can keep
// secrets out of config.yaml.
//
// The ENCRYPTION_KEY variable has no RCAT_ prefix because it is usually injected
// by infrastructure tooling that does not know the application prefix.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	MultiTenancy MultiTenancyConfig `mapstructure:"multi_tenancy"`
	Security     SecurityConfig     `mapstructure:"security"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Audit        AuditConfig        `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
	// Schema is the global namespace holding companies and the identity lookup.
	Schema           string        `mapstructure:"schema"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT                   JWTConfig `mapstructure:"jwt"`
	BcryptCost            int       `mapstructure:"bcrypt_cost"`
	AllowSelfRegistration bool      `mapstructure:"allow_self_registration"`
}

// JWTConfig holds token signing configuration
type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// DevMode allows an empty secret; a random one is generated per process.
	DevMode bool `mapstructure:"dev_mode"`
}

// MultiTenancyConfig holds schema-per-tenant settings
type MultiTenancyConfig struct {
	SchemaPrefix      string               `mapstructure:"schema_prefix"`
	SeedReferenceData bool                 `mapstructure:"seed_reference_data"`
	Reconciliation    ReconciliationConfig `mapstructure:"reconciliation"`
}

// ReconciliationConfig controls the orphaned tenant sweep
type ReconciliationConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS          CORSConfig         `mapstructure:"cors"`
	RateLimiting  RateLimitingConfig `mapstructure:"rate_limiting"`
	EncryptionKey string             `mapstructure:"encryption_key"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// RedisURL switches the limiter to a shared Redis backend when set.
	RedisURL string `mapstructure:"redis_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	Enabled           bool                 `mapstructure:"enabled"`
	LogReadOperations bool                 `mapstructure:"log_read_operations"`
	LogFailedRequests bool                 `mapstructure:"log_failed_requests"`
	Shippers          []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig configures one external audit destination
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path string `mapstructure:"path"`
}

var schemaPrefixPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// bindEnvVars explicitly binds every nested key so Unmarshal sees env overrides.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",
		"database.schema",
		"database.statement_timeout",

		// Auth
		"auth.jwt.secret",
		"auth.jwt.issuer",
		"auth.jwt.access_token_ttl",
		"auth.jwt.dev_mode",
		"auth.bcrypt_cost",
		"auth.allow_self_registration",

		// Multi-tenancy
		"multi_tenancy.schema_prefix",
		"multi_tenancy.seed_reference_data",
		"multi_tenancy.reconciliation.enabled",
		"multi_tenancy.reconciliation.interval",
		"multi_tenancy.reconciliation.grace_period",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.redis_url",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.log_read_operations",
		"audit.log_failed_requests",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	// Unprefixed on purpose, see package doc.
	if err := v.BindEnv("security.encryption_key", "ENCRYPTION_KEY"); err != nil {
		return fmt.Errorf("failed to bind env var %q: %w", "ENCRYPTION_KEY", err)
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// newViper builds the layered viper instance shared by Load and Watch.
func newViper(configPath string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/resource-catalog")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Auth.JWT.Secret = expandEnv(cfg.Auth.JWT.Secret)
	cfg.Security.EncryptionKey = expandEnv(cfg.Security.EncryptionKey)
	cfg.Security.RateLimiting.RedisURL = expandEnv(cfg.Security.RateLimiting.RedisURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "resource_catalog")
	v.SetDefault("database.user", "catalog")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.statement_timeout", "30s")

	// Auth defaults
	v.SetDefault("auth.jwt.issuer", "resource-catalog")
	v.SetDefault("auth.jwt.access_token_ttl", "30m")
	v.SetDefault("auth.jwt.dev_mode", false)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.allow_self_registration", false)

	// Multi-tenancy defaults
	v.SetDefault("multi_tenancy.schema_prefix", "tenant_")
	v.SetDefault("multi_tenancy.seed_reference_data", true)
	v.SetDefault("multi_tenancy.reconciliation.enabled", false)
	v.SetDefault("multi_tenancy.reconciliation.interval", "1h")
	v.SetDefault("multi_tenancy.reconciliation.grace_period", "15m")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "resource-catalog")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_read_operations", false)
	v.SetDefault("audit.log_failed_requests", false)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if !schemaPrefixPattern.MatchString(c.Database.Schema) {
		return fmt.Errorf("invalid database.schema: %q", c.Database.Schema)
	}

	if !schemaPrefixPattern.MatchString(c.MultiTenancy.SchemaPrefix) {
		return fmt.Errorf("invalid multi_tenancy.schema_prefix: %q (must match %s)", c.MultiTenancy.SchemaPrefix, schemaPrefixPattern)
	}
	if strings.HasPrefix(c.Database.Schema, c.MultiTenancy.SchemaPrefix) {
		return fmt.Errorf("database.schema %q must not start with the tenant schema prefix %q", c.Database.Schema, c.MultiTenancy.SchemaPrefix)
	}
	if c.MultiTenancy.Reconciliation.Enabled && c.MultiTenancy.Reconciliation.Interval <= 0 {
		return fmt.Errorf("multi_tenancy.reconciliation.interval must be positive when reconciliation is enabled")
	}

	if c.Auth.JWT.Secret == "" && !c.Auth.JWT.DevMode {
		return fmt.Errorf("auth.jwt.secret is required (set RCAT_AUTH_JWT_SECRET or enable auth.jwt.dev_mode)")
	}
	if c.Auth.JWT.Secret != "" && len(c.Auth.JWT.Secret) < 32 {
		return fmt.Errorf("auth.jwt.secret must be at least 32 characters")
	}
	if c.Auth.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.jwt.access_token_ttl must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("invalid auth.bcrypt_cost: %d (must be between 4 and 31)", c.Auth.BcryptCost)
	}

	for i, s := range c.Audit.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d].webhook.url is required for webhook shipper", i)
			}
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d].file.path is required for file shipper", i)
			}
		default:
			return fmt.Errorf("audit.shippers[%d]: unknown shipper type %q", i, s.Type)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
	if c.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s", c.Schema)
	}
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return dsn
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
