package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"CONFIG_FILE",
	"PORT",
	"ENVIRONMENT",
	"COOKIE_SECRET",
	"ALLOWED_ORIGINS",
	"GREETER_MESSAGE",
	"SESSION_RECONNECT_TIMEOUT",
	"OUTBOUND_QUEUE_LEN",
	"REDIS_ENABLED",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"RATE_LIMIT_LOGIN",
	"RATE_LIMIT_CREATE_ROOM",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_INSECURE",
}

// setupTestEnv clears every config variable and restores the original
// environment on cleanup
func setupTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		if val, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, val) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_ValidProductionConfiguration(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "this-is-a-very-long-secret-key-for-testing")
	os.Setenv("PORT", "9000")
	os.Setenv("ALLOWED_ORIGINS", "https://play.example.com, http://localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected PORT to be '9000', got '%s'", cfg.Port)
	}
	if cfg.Environment != "production" {
		t.Errorf("Expected ENVIRONMENT to default to 'production', got '%s'", cfg.Environment)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://play.example.com" {
		t.Errorf("Expected origins to be parsed and trimmed, got %v", cfg.AllowedOrigins)
	}
	if cfg.ReconnectTimeout != 180*time.Second {
		t.Errorf("Expected reconnect timeout to default to 180s, got %s", cfg.ReconnectTimeout)
	}
	if cfg.OutboundQueueLen != 256 {
		t.Errorf("Expected outbound queue length to default to 256, got %d", cfg.OutboundQueueLen)
	}
	if cfg.GreeterMessage != "Welcome to the room!" {
		t.Errorf("Expected default greeter message, got '%s'", cfg.GreeterMessage)
	}
	if cfg.RateLimitLogin != "30-M" || cfg.RateLimitCreateRoom != "60-M" {
		t.Errorf("Expected default rate limits, got %s / %s", cfg.RateLimitLogin, cfg.RateLimitCreateRoom)
	}
}

func TestLoad_MissingCookieSecretInProduction(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("PORT", "8080")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing COOKIE_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "COOKIE_SECRET is required") {
		t.Errorf("Expected error message about COOKIE_SECRET, got: %v", err)
	}
}

func TestLoad_ShortCookieSecret(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "short")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for short COOKIE_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "must be at least 32 characters") {
		t.Errorf("Expected error message about COOKIE_SECRET length, got: %v", err)
	}
}

func TestLoad_DevelopmentDefaultsSecret(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error in development, got: %v", err)
	}
	if cfg.CookieSecret == "" {
		t.Error("Expected development mode to fill in a cookie secret")
	}
	if !cfg.DevelopmentMode() {
		t.Error("Expected DevelopmentMode() to be true")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "this-is-a-very-long-secret-key-for-testing")
	os.Setenv("PORT", "99999")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for invalid PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("Expected error message about invalid PORT, got: %v", err)
	}
}

func TestLoad_InvalidOrigin(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "this-is-a-very-long-secret-key-for-testing")
	os.Setenv("ALLOWED_ORIGINS", "not a url")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for invalid origin, got nil")
	}
	if !strings.Contains(err.Error(), "ALLOWED_ORIGINS entry must be a URL") {
		t.Errorf("Expected error message about origins, got: %v", err)
	}
}

func TestLoad_InvalidReconnectTimeout(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "this-is-a-very-long-secret-key-for-testing")
	os.Setenv("SESSION_RECONNECT_TIMEOUT", "-5s")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for negative timeout, got nil")
	}
	if !strings.Contains(err.Error(), "SESSION_RECONNECT_TIMEOUT must be a positive duration") {
		t.Errorf("Expected error message about timeout, got: %v", err)
	}
}

func TestLoad_RedisDefaultAddr(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "this-is-a-very-long-secret-key-for-testing")
	os.Setenv("REDIS_ENABLED", "true")
	// Don't set REDIS_ADDR

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR to default to 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestLoad_YAMLOverlayWithEnvPrecedence(t *testing.T) {
	setupTestEnv(t)

	path := filepath.Join(t.TempDir(), "parlor.yaml")
	body := `
port: "7777"
environment: development
greeter_message: "Take a seat"
reconnect_timeout: 30s
rate_limits:
  login: "5-M"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CONFIG_FILE", path)
	os.Setenv("PORT", "8888") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "8888" {
		t.Errorf("Expected env PORT to override the file, got '%s'", cfg.Port)
	}
	if cfg.GreeterMessage != "Take a seat" {
		t.Errorf("Expected greeter message from file, got '%s'", cfg.GreeterMessage)
	}
	if cfg.ReconnectTimeout != 30*time.Second {
		t.Errorf("Expected reconnect timeout from file, got %s", cfg.ReconnectTimeout)
	}
	if cfg.RateLimitLogin != "5-M" {
		t.Errorf("Expected login rate limit from file, got '%s'", cfg.RateLimitLogin)
	}
}

func TestLoad_MissingConfigFileErrors(t *testing.T) {
	setupTestEnv(t)

	os.Setenv("COOKIE_SECRET", "this-is-a-very-long-secret-key-for-testing")
	os.Setenv("CONFIG_FILE", "/nonexistent/parlor.yaml")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for unreadable CONFIG_FILE, got nil")
	}
	if !strings.Contains(err.Error(), "reading CONFIG_FILE") {
		t.Errorf("Expected error message about CONFIG_FILE, got: %v", err)
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:6379", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
