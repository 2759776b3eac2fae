// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Upload     UploadConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Cloudinary CloudinaryConfig
	Mail       MailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on. PORT is honoured for PaaS deployments (default: 3001)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"3001"`

	// Environment is reported by the health endpoint (default: development)
	Environment string `env:"APP_ENV" envAlt:"NODE_ENV" default:"development"`

	// ReadTimeout is the maximum duration for reading request body (default: 5m, attachments can be slow)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"5m"`

	// WriteTimeout is the maximum duration for writing response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StoreConfig holds record store settings.
type StoreConfig struct {
	// Driver selects the backend: mongo, postgres or memory (default: mongo)
	Driver string `env:"STORE_DRIVER" default:"mongo"`

	// URL is the connection string for the selected driver.
	// Supports MONGODB_URI and DATABASE_URL for compatibility.
	URL string `env:"MONGODB_URI" envAlt:"DATABASE_URL"`

	// Database is the MongoDB database name (default: formulaciones)
	Database string `env:"MONGODB_DATABASE" default:"formulaciones"`

	// Collection is the MongoDB collection / PostgreSQL table name (default: formulations)
	Collection string `env:"STORE_COLLECTION" default:"formulations"`

	// ConnectTimeout bounds the initial connection and ping (default: 10s)
	ConnectTimeout time.Duration `env:"STORE_CONNECT_TIMEOUT" default:"10s"`

	// MaxConns is the maximum number of pooled connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds bulk import and attachment settings.
type UploadConfig struct {
	// MaxAttachmentSize is the maximum allowed document size in bytes (default: 10MB)
	MaxAttachmentSize int64 `env:"UPLOAD_MAX_ATTACHMENT_SIZE" default:"10485760"`

	// MaxImportSize is the maximum request body for bulk import in bytes (default: 20MB)
	MaxImportSize int64 `env:"UPLOAD_MAX_IMPORT_SIZE" default:"20971520"`

	// BatchSize is the number of records per database write (default: 500)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"500"`

	// MaxConcurrentImports is the number of bulk imports allowed to write at once (default: 3)
	MaxConcurrentImports int `env:"UPLOAD_MAX_CONCURRENT_IMPORTS" default:"3"`

	// ImportWait is how long an import waits for a free slot (default: 30s)
	ImportWait time.Duration `env:"UPLOAD_IMPORT_WAIT" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// AllowedOrigins is a comma-separated list of CORS origins
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,https://camaradecomercio.vercel.app"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the admin routes (list, import) with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted admin API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// CloudinaryConfig holds object storage credentials for attachments.
// Uploads are disabled when CloudName is empty.
type CloudinaryConfig struct {
	CloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `env:"CLOUDINARY_API_KEY"`
	APISecret string `env:"CLOUDINARY_API_SECRET"`

	// BaseURL is the API endpoint (default: https://api.cloudinary.com)
	BaseURL string `env:"CLOUDINARY_BASE_URL" default:"https://api.cloudinary.com"`

	// Folder receives submission documents (default: evidencias)
	Folder string `env:"CLOUDINARY_FOLDER" default:"evidencias"`

	// BootstrapFolders are created at startup if missing (default: evidencias,perfiles)
	BootstrapFolders []string `env:"CLOUDINARY_BOOTSTRAP_FOLDERS" default:"evidencias,perfiles"`

	// Timeout bounds a single upload (default: 5m)
	Timeout time.Duration `env:"CLOUDINARY_TIMEOUT" default:"5m"`
}

// Enabled reports whether attachment uploads are configured.
func (c *CloudinaryConfig) Enabled() bool {
	return c.CloudName != ""
}

// MailConfig holds confirmation email settings.
// Emails are only logged when SendGridKey is empty.
type MailConfig struct {
	SendGridKey string `env:"SENDGRID_API_KEY"`

	// FromAddress is the sender address (default: no-reply@localhost)
	FromAddress string `env:"MAIL_FROM_ADDRESS" default:"no-reply@localhost"`

	// AppName prefixes subjects and names the sender (default: Formulaciones)
	AppName string `env:"MAIL_APP_NAME" default:"Formulaciones"`

	// Timeout bounds a single delivery attempt (default: 10s)
	Timeout time.Duration `env:"MAIL_TIMEOUT" default:"10s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
