// Package config loads storesync settings from environment variables.
// Defaults come from struct tags and the result is validated once at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Sync     SyncConfig
	Notify   NotifyConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the wait for in-flight batches on exit (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxBodyBytes caps a sync request body (default: 32MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"33554432"`
}

// DatabaseConfig selects and tunes the store.
type DatabaseConfig struct {
	// Driver is postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// DB_URL is accepted for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `env:"SQLITE_PATH" default:"storesync.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SyncConfig holds batch reconciliation settings.
type SyncConfig struct {
	// ChunkSize is the number of records per chunk transaction (default: 50)
	ChunkSize int `env:"SYNC_CHUNK_SIZE" default:"50"`

	// MaxConcurrent bounds concurrently running batches (default: 8)
	MaxConcurrent int `env:"SYNC_MAX_CONCURRENT" default:"8"`

	// MaxWait is how long a batch waits for a slot (default: 30s)
	MaxWait time.Duration `env:"SYNC_MAX_WAIT" default:"30s"`

	// StripFields are client-only fields removed before applying. Empty keeps
	// the engine default.
	StripFields []string `env:"SYNC_STRIP_FIELDS"`

	// ChangesLimit is the default page size for incremental pulls (default: 100)
	ChangesLimit int `env:"SYNC_CHANGES_LIMIT" default:"100"`

	// CatalogPath is an optional YAML entity catalog loaded at startup.
	CatalogPath string `env:"SYNC_CATALOG_PATH"`
}

// NotifyConfig selects where applied records are published.
type NotifyConfig struct {
	// Sinks is a comma-separated list of: log, kafka, amqp, mongo (default: log)
	Sinks []string `env:"NOTIFY_SINKS" default:"log"`

	QueueSize   int           `env:"NOTIFY_QUEUE_SIZE" default:"256"`
	SendTimeout time.Duration `env:"NOTIFY_SEND_TIMEOUT" default:"10s"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS"`
	KafkaTopic    string   `env:"KAFKA_TOPIC" default:"storesync.changes"`
	KafkaClientID string   `env:"KAFKA_CLIENT_ID" default:"storesync"`
	KafkaTLS      bool     `env:"KAFKA_TLS" default:"false"`

	AMQPURL      string `env:"AMQP_URL" envAlt:"RABBITMQ_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" default:"storesync"`

	MongoURI        string `env:"MONGO_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE" default:"storesync"`
	MongoCollection string `env:"MONGO_COLLECTION" default:"sync_log"`
}

// Enabled reports whether sink is listed in Sinks.
func (c *NotifyConfig) Enabled(sink string) bool {
	for _, s := range c.Sinks {
		if s == sink {
			return true
		}
	}
	return false
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys.
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
