// Package config loads application settings from environment variables,
// applies defaults, and validates everything on startup so misconfiguration
// fails fast.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Scratch   ScratchConfig
	Engine    EngineConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Retention RetentionConfig
	Database  DatabaseConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout must outlast ENGINE_TIMEOUT; 0 disables it.
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except engine runs, which are
	// bounded by ENGINE_TIMEOUT instead.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// ScratchConfig locates the shared scratch directory.
type ScratchConfig struct {
	// Dir holds uploads, rule payloads and produced artifacts.
	Dir string `env:"SCRATCH_DIR" envAlt:"TEMP_DIR" default:"scratch"`
}

// EngineConfig describes how the external engine is started.
type EngineConfig struct {
	// Command is the preferred executable (default: python3).
	Command string `env:"ENGINE_COMMAND" default:"python3"`

	// Fallbacks are tried in order when Command cannot be found.
	Fallbacks []string `env:"ENGINE_FALLBACKS" default:"python"`

	// ValidationScript and MappingScript are passed as the first argument.
	// Leave empty when Command is itself the engine.
	ValidationScript string `env:"ENGINE_VALIDATION_SCRIPT" default:"engine/validate.py"`
	MappingScript    string `env:"ENGINE_MAPPING_SCRIPT" default:"engine/mapping.py"`

	// WorkDir is the engine's working directory (default: current directory).
	WorkDir string `env:"ENGINE_WORKDIR" default:"."`

	// Timeout bounds one engine run; 0 disables the bound.
	Timeout time.Duration `env:"ENGINE_TIMEOUT" default:"10m"`

	MaxConcurrent int           `env:"ENGINE_MAX_CONCURRENT" default:"2"`
	MaxWaitTime   time.Duration `env:"ENGINE_MAX_WAIT_TIME" default:"30s"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed request body in bytes (default: 50MB).
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// EngineLimit is requests per minute for the engine endpoints.
	EngineLimit int `env:"RATE_LIMIT_ENGINE" envAlt:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Forwarded-For headers are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enforces X-API-Key on /api routes.
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig bounds how long produced artifacts stay on disk.
type RetentionConfig struct {
	// TTL removes artifacts older than this and must exceed ENGINE_TIMEOUT;
	// 0 keeps them forever.
	TTL           time.Duration `env:"ARTIFACT_TTL" default:"24h"`
	SweepInterval time.Duration `env:"ARTIFACT_SWEEP_INTERVAL" default:"1h"`
}

// DatabaseConfig holds the optional history database settings. Without a
// URL, run history is kept in memory.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Candidates returns Command followed by Fallbacks, without blanks or
// duplicates.
func (c *EngineConfig) Candidates() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, 1+len(c.Fallbacks))
	for _, name := range append([]string{c.Command}, c.Fallbacks...) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Enabled reports whether a history database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}
