package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv, applies defaults for unset
// values, and validates the result.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct populates tagged fields, recursing into nested structs.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := getenv(envName)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = getenv(alt)
			}
		}
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

// setField converts value to the field's type.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
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

// splitList splits a comma-separated value, dropping blank entries.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		add("SERVER_READ_TIMEOUT and SERVER_WRITE_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Engine.Timeout > 0 && c.Server.WriteTimeout <= c.Engine.Timeout {
		add("SERVER_WRITE_TIMEOUT (%s) must exceed ENGINE_TIMEOUT (%s) or be 0",
			c.Server.WriteTimeout, c.Engine.Timeout)
	}

	if strings.TrimSpace(c.Scratch.Dir) == "" {
		add("SCRATCH_DIR must not be empty")
	}

	if len(c.Engine.Candidates()) == 0 {
		add("ENGINE_COMMAND or ENGINE_FALLBACKS must name at least one executable")
	}
	if c.Engine.Timeout < 0 {
		add("ENGINE_TIMEOUT must be non-negative")
	}
	if c.Engine.MaxConcurrent <= 0 {
		add("ENGINE_MAX_CONCURRENT must be positive")
	}
	if c.Engine.MaxWaitTime <= 0 {
		add("ENGINE_MAX_WAIT_TIME must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		add("UPLOAD_MAX_FILE_SIZE must be positive")
	}

	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.EngineLimit <= 0) {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_ENGINE must be positive when rate limiting is enabled")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		add("REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	if c.Retention.TTL < 0 {
		add("ARTIFACT_TTL must be non-negative")
	}
	if c.Retention.TTL > 0 && c.Retention.SweepInterval <= 0 {
		add("ARTIFACT_SWEEP_INTERVAL must be positive when ARTIFACT_TTL is set")
	}
	// An engine's input copy is written after it gets a slot, so it must
	// outlive one run.
	if c.Retention.TTL > 0 {
		switch {
		case c.Engine.Timeout == 0:
			add("ENGINE_TIMEOUT must be set when ARTIFACT_TTL is set")
		case c.Retention.TTL <= c.Engine.Timeout:
			add("ARTIFACT_TTL (%s) must exceed ENGINE_TIMEOUT (%s) or be 0",
				c.Retention.TTL, c.Engine.Timeout)
		}
	}

	if c.Database.Enabled() {
		if c.Database.MaxConns <= 0 {
			add("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			add("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)",
				c.Database.MinConns, c.Database.MaxConns)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a log-safe summary; API keys and the database URL are
// masked.
func (c *Config) String() string {
	db := "memory"
	if c.Database.Enabled() {
		db = "[MASKED]"
	}
	return fmt.Sprintf(
		"Config{Server: %s, Scratch: %q, Engine: {Candidates: %v, Timeout: %s, MaxConcurrent: %d}, "+
			"Upload: {MaxFileSize: %d}, Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
			"Security: {RequireAPIKey: %v, APIKeys: %d}, Retention: {TTL: %s}, History: %s, "+
			"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(), c.Scratch.Dir, c.Engine.Candidates(), c.Engine.Timeout, c.Engine.MaxConcurrent,
		c.Upload.MaxFileSize, c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Security.RequireAPIKey, len(c.Security.APIKeys), c.Retention.TTL, db,
		c.Logging.Level, c.Logging.Format,
	)
}
