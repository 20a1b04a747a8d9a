package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the validated server configuration. Values come from an
// optional YAML file (CONFIG_FILE) overridden by environment variables.
type Config struct {
	// Required in production
	CookieSecret string

	// Optional variables with defaults
	Port             string
	Environment      string
	AllowedOrigins   []string
	GreeterMessage   string
	ReconnectTimeout time.Duration
	OutboundQueueLen int

	// Redis-backed rate limit store (memory store when disabled)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Rate limit format strings ("<count>-<S|M|H>")
	RateLimitLogin      string
	RateLimitCreateRoom string

	// Tracing (disabled when the endpoint is empty)
	OTLPEndpoint string
	OTLPInsecure bool
}

// DevelopmentMode reports whether the server runs with relaxed validation
// and human-readable logs.
func (c *Config) DevelopmentMode() bool {
	return c.Environment == "development"
}

// fileConfig mirrors Config for the optional YAML overlay.
type fileConfig struct {
	Port             string   `yaml:"port"`
	Environment      string   `yaml:"environment"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	CookieSecret     string   `yaml:"cookie_secret"`
	GreeterMessage   string   `yaml:"greeter_message"`
	ReconnectTimeout string   `yaml:"reconnect_timeout"`
	OutboundQueueLen int      `yaml:"outbound_queue_len"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	RateLimits struct {
		Login      string `yaml:"login"`
		CreateRoom string `yaml:"create_room"`
	} `yaml:"rate_limits"`

	Otel struct {
		Endpoint string `yaml:"endpoint"`
		Insecure bool   `yaml:"insecure"`
	} `yaml:"otel"`
}

// Load builds the configuration from the YAML file named by CONFIG_FILE (if
// any), applies environment overrides, and validates the result. It returns
// an error listing every violation rather than stopping at the first.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             firstNonEmpty(os.Getenv("PORT"), file.Port, "8080"),
		Environment:      firstNonEmpty(os.Getenv("ENVIRONMENT"), file.Environment, "production"),
		CookieSecret:     firstNonEmpty(os.Getenv("COOKIE_SECRET"), file.CookieSecret),
		GreeterMessage:   firstNonEmpty(os.Getenv("GREETER_MESSAGE"), file.GreeterMessage, "Welcome to the room!"),
		RedisAddr:        firstNonEmpty(os.Getenv("REDIS_ADDR"), file.Redis.Addr),
		RedisPassword:    firstNonEmpty(os.Getenv("REDIS_PASSWORD"), file.Redis.Password),
		RateLimitLogin:   firstNonEmpty(os.Getenv("RATE_LIMIT_LOGIN"), file.RateLimits.Login, "30-M"),
		OTLPEndpoint:     firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), file.Otel.Endpoint),
		OutboundQueueLen: file.OutboundQueueLen,
	}
	cfg.RateLimitCreateRoom = firstNonEmpty(os.Getenv("RATE_LIMIT_CREATE_ROOM"), file.RateLimits.CreateRoom, "60-M")

	var errs []string

	// PORT must be a valid port number
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// ENVIRONMENT gates secret strictness
	if cfg.Environment != "development" && cfg.Environment != "production" {
		errs = append(errs, fmt.Sprintf("ENVIRONMENT must be 'development' or 'production' (got '%s')", cfg.Environment))
	}

	// COOKIE_SECRET signs the username cookie. Development gets a throwaway.
	if cfg.CookieSecret == "" {
		if cfg.DevelopmentMode() {
			cfg.CookieSecret = "parlor-development-cookie-secret-do-not-ship"
			slog.Warn("COOKIE_SECRET not set, using development default")
		} else {
			errs = append(errs, "COOKIE_SECRET is required in production")
		}
	} else if len(cfg.CookieSecret) < 32 {
		errs = append(errs, fmt.Sprintf("COOKIE_SECRET must be at least 32 characters (got %d)", len(cfg.CookieSecret)))
	}

	// ALLOWED_ORIGINS: comma-separated URLs with scheme and host
	cfg.AllowedOrigins = splitOrigins(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	for _, origin := range cfg.AllowedOrigins {
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("ALLOWED_ORIGINS entry must be a URL with scheme and host (got '%s')", origin))
		}
	}

	// SESSION_RECONNECT_TIMEOUT: how long a seat may stay vacant mid-game
	timeoutStr := firstNonEmpty(os.Getenv("SESSION_RECONNECT_TIMEOUT"), file.ReconnectTimeout, "180s")
	if d, err := time.ParseDuration(timeoutStr); err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("SESSION_RECONNECT_TIMEOUT must be a positive duration (got '%s')", timeoutStr))
	} else {
		cfg.ReconnectTimeout = d
	}

	if cfg.OutboundQueueLen == 0 {
		cfg.OutboundQueueLen = 256
	}
	if raw, exists := os.LookupEnv("OUTBOUND_QUEUE_LEN"); exists {
		if n, err := strconv.Atoi(raw); err != nil || n < 1 {
			errs = append(errs, fmt.Sprintf("OUTBOUND_QUEUE_LEN must be a positive integer (got '%s')", raw))
		} else {
			cfg.OutboundQueueLen = n
		}
	}

	// Redis is only used as the rate limiter store
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true" || (os.Getenv("REDIS_ENABLED") == "" && file.Redis.Enabled)
	if cfg.RedisEnabled {
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
	}

	cfg.OTLPInsecure = os.Getenv("OTEL_INSECURE") == "true" || (os.Getenv("OTEL_INSECURE") == "" && file.Otel.Insecure)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// loadFile parses the optional YAML overlay. A missing CONFIG_FILE is fine;
// a named but unreadable one is an error.
func loadFile(path string) (*fileConfig, error) {
	file := &fileConfig{}
	if path == "" {
		return file, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CONFIG_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parsing CONFIG_FILE %s: %w", path, err)
	}
	return file, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("configuration validated",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"allowed_origins", strings.Join(cfg.AllowedOrigins, ","),
		"cookie_secret", redactSecret(cfg.CookieSecret),
		"reconnect_timeout", cfg.ReconnectTimeout.String(),
		"outbound_queue_len", cfg.OutboundQueueLen,
		"redis_enabled", cfg.RedisEnabled,
		"rate_limit_login", cfg.RateLimitLogin,
		"rate_limit_create_room", cfg.RateLimitCreateRoom,
		"otlp_endpoint", cfg.OTLPEndpoint,
	)
}

// firstNonEmpty returns the first non-empty value, used to layer env over
// file over defaults.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
