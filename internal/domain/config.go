package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	KB          KBConfig        `mapstructure:"kb"`
	Rules       RulesConfig     `mapstructure:"rules"`
	Engine      EngineConfig    `mapstructure:"engine"`
	Cache       CacheConfig     `mapstructure:"cache"`
	History     HistoryConfig   `mapstructure:"history"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents postgres connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// KB source drivers.
const (
	KBSourceEmbedded = "embedded"
	KBSourceSQLite   = "sqlite"
	KBSourcePostgres = "postgres"
)

// KBConfig selects where the knowledge base is read from.
type KBConfig struct {
	// Source is one of embedded, sqlite or postgres.
	Source     string `mapstructure:"source"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// CurationFile overrides the embedded curation dataset when set.
	CurationFile string `mapstructure:"curation_file"`
}

// RulesConfig selects where rules are read from.
type RulesConfig struct {
	// Dir is a directory of rule files. Empty uses the embedded rule set.
	Dir           string        `mapstructure:"dir"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// EngineConfig tunes the evaluation policies.
type EngineConfig struct {
	CompositeMinMagnitude  Magnitude `mapstructure:"composite_min_magnitude"`
	EscalateMultiMechanism bool      `mapstructure:"escalate_multi_mechanism"`
	MaxDrugs               int       `mapstructure:"max_drugs"`
}

// DefaultEngineConfig returns the policy defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CompositeMinMagnitude: MagnitudeMedium,
		MaxDrugs:              25,
	}
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxItems    int           `mapstructure:"max_items"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// HistoryConfig represents evaluation history storage
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver is sqlite or postgres.
	Driver    string        `mapstructure:"driver"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
	// PurgeSchedule is a cron spec for the retention job.
	PurgeSchedule string `mapstructure:"purge_schedule"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig represents prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// RateLimitConfig represents per-client rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	TransportType  string        `mapstructure:"transport_type"` // "stdio", "http"
	HTTPPort       int           `mapstructure:"http_port"`
	HTTPHost       string        `mapstructure:"http_host"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}
