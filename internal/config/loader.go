package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := lookup(envName, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookup returns the primary variable, falling back to the alternate name.
func lookup(primary, alt string) string {
	if v := os.Getenv(primary); v != "" {
		return v
	}
	if alt != "" {
		return os.Getenv(alt)
	}
	return ""
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(splitList(value)))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// splitList splits comma-separated values and drops blanks.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case DriverMongo, DriverPostgres:
		if c.Store.URL == "" {
			errs = append(errs, fmt.Sprintf("MONGODB_URI or DATABASE_URL is required for STORE_DRIVER=%s", c.Store.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: mongo, postgres, memory", c.Store.Driver))
	}
	if c.Store.Collection == "" {
		errs = append(errs, "STORE_COLLECTION must not be empty")
	}
	if c.Store.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Store.MaxConns < c.Store.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Store.MaxConns, c.Store.MinConns))
	}
	if c.Store.ConnectTimeout <= 0 {
		errs = append(errs, "STORE_CONNECT_TIMEOUT must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	if c.Upload.MaxAttachmentSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_ATTACHMENT_SIZE must be positive")
	}
	if c.Upload.MaxImportSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_IMPORT_SIZE must be positive")
	}
	if c.Upload.BatchSize <= 0 {
		errs = append(errs, "UPLOAD_BATCH_SIZE must be positive")
	}
	if c.Upload.MaxConcurrentImports <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT_IMPORTS must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	if c.Cloudinary.Enabled() {
		if c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
			errs = append(errs, "CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required when CLOUDINARY_CLOUD_NAME is set")
		}
		if c.Cloudinary.Folder == "" {
			errs = append(errs, "CLOUDINARY_FOLDER must not be empty")
		}
		if c.Cloudinary.Timeout <= 0 {
			errs = append(errs, "CLOUDINARY_TIMEOUT must be positive")
		}
	}

	if c.Mail.SendGridKey != "" && c.Mail.FromAddress == "" {
		errs = append(errs, "MAIL_FROM_ADDRESS is required when SENDGRID_API_KEY is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings and credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Driver: %q, URL: [MASKED], Collection: %q}, ", c.Store.Driver, c.Store.Collection)
	fmt.Fprintf(&b, "Upload: {MaxAttachmentSize: %d, BatchSize: %d}, ", c.Upload.MaxAttachmentSize, c.Upload.BatchSize)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Cloudinary: {CloudName: %q, APISecret: [MASKED]}, ", c.Cloudinary.CloudName)
	fmt.Fprintf(&b, "Mail: {SendGrid: %v}, ", c.Mail.SendGridKey != "")
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
