package config

import (
	"os"
	"strings"
	"testing"
)

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ledger",
		Password: "secret",
		Name:     "ledger",
		SSLMode:  "disable",
	}
	dsn := db.GetDSN()

	expected := "host=localhost port=5432 user=ledger password=secret dbname=ledger sslmode=disable"
	if dsn != expected {
		t.Errorf("GetDSN() = %q, want %q", dsn, expected)
	}
}

func TestGetDSNCustomValues(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5433,
		User:     "admin",
		Password: "p@ss",
		Name:     "mydb",
		SSLMode:  "require",
	}
	dsn := db.GetDSN()

	if !strings.Contains(dsn, "host=db.example.com") {
		t.Errorf("DSN missing host, got: %s", dsn)
	}
	if !strings.Contains(dsn, "port=5433") {
		t.Errorf("DSN missing port, got: %s", dsn)
	}
	if !strings.Contains(dsn, "sslmode=require") {
		t.Errorf("DSN missing sslmode, got: %s", dsn)
	}
}

func TestGetEnv(t *testing.T) {
	os.Unsetenv("TEST_CONFIG_VAR")
	if got := getEnv("TEST_CONFIG_VAR", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q", got, "default")
	}

	os.Setenv("TEST_CONFIG_VAR", "custom")
	defer os.Unsetenv("TEST_CONFIG_VAR")
	if got := getEnv("TEST_CONFIG_VAR", "default"); got != "custom" {
		t.Errorf("getEnv() = %q, want %q", got, "custom")
	}
}

func TestGetIntEnv(t *testing.T) {
	t.Run("fallback when unset", func(t *testing.T) {
		os.Unsetenv("TEST_INT_VAR")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 8080 {
			t.Errorf("getIntEnv() = %d, want %d", got, 8080)
		}
	})

	t.Run("parses valid int", func(t *testing.T) {
		os.Setenv("TEST_INT_VAR", "9090")
		defer os.Unsetenv("TEST_INT_VAR")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 9090 {
			t.Errorf("getIntEnv() = %d, want %d", got, 9090)
		}
	})

	t.Run("error on invalid int", func(t *testing.T) {
		os.Setenv("TEST_INT_VAR", "not_int")
		defer os.Unsetenv("TEST_INT_VAR")
		_, err := getIntEnv("TEST_INT_VAR", 8080)
		if err == nil {
			t.Error("expected error for invalid int value")
		}
	})
}

var configKeys = []string{
	"SERVER_PORT", "DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"DB_SQLITE_PATH", "DB_MAX_OPEN_CONNS", "JWT_SECRET", "JWT_EXPIRY_HOURS", "REDIS_HOST", "REDIS_PORT",
	"REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL_SEC", "CORS_ALLOWED_ORIGINS", "MODEL_SCHEMA_PATH",
	"MODEL_ARTIFACT_PATH", "OUTCOME_OVERWRITE", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
	"MQTT_URL", "MQTT_TOPIC", "MQTT_CLIENT_ID", "METRICS_ADDR",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "postgres")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Database.SQLitePath != "predictions.db" {
		t.Errorf("Database.SQLitePath = %q, want %q", cfg.Database.SQLitePath, "predictions.db")
	}
	if cfg.JWT.ExpiryHours != 24 {
		t.Errorf("JWT.ExpiryHours = %d, want 24", cfg.JWT.ExpiryHours)
	}
	if cfg.JWT.Enabled() {
		t.Error("JWT should be disabled without a secret")
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, want 6379", cfg.Redis.Port)
	}
	if cfg.Redis.CacheTTL != 60 {
		t.Errorf("Redis.CacheTTL = %d, want 60", cfg.Redis.CacheTTL)
	}
	if cfg.CORS.AllowedOrigins != "*" {
		t.Errorf("CORS.AllowedOrigins = %q, want %q", cfg.CORS.AllowedOrigins, "*")
	}
	if cfg.Model.SchemaPath != "schema.yaml" || cfg.Model.ArtifactPath != "model.yaml" {
		t.Errorf("Model paths = %q, %q", cfg.Model.SchemaPath, cfg.Model.ArtifactPath)
	}
	if cfg.Ledger.AllowOutcomeOverwrite {
		t.Error("outcome overwrite should default to false")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.MQTT.Topic != "ledger/outcomes/+" {
		t.Errorf("MQTT.Topic = %q", cfg.MQTT.Topic)
	}
}

func TestLoadConfigCustom(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_HOST", "db.prod")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRY_HOURS", "48")
	t.Setenv("OUTCOME_OVERWRITE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Database.Host != "db.prod" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "db.prod")
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if !cfg.JWT.Enabled() {
		t.Error("JWT should be enabled with a secret")
	}
	if cfg.JWT.ExpiryHours != 48 {
		t.Errorf("JWT.ExpiryHours = %d, want 48", cfg.JWT.ExpiryHours)
	}
	if !cfg.Ledger.AllowOutcomeOverwrite {
		t.Error("OUTCOME_OVERWRITE=true should enable overwrite")
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SERVER_PORT", "invalid"},
		{"DB_PORT", "x"},
		{"REDIS_DB", "one"},
		{"OUTCOME_OVERWRITE", "sometimes"},
		{"DB_DRIVER", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL_VAR", "")
	got, err := getBoolEnv("TEST_BOOL_VAR", true)
	if err != nil || !got {
		t.Errorf("getBoolEnv() = %v, %v; want true, nil", got, err)
	}

	t.Setenv("TEST_BOOL_VAR", "0")
	got, err = getBoolEnv("TEST_BOOL_VAR", true)
	if err != nil || got {
		t.Errorf("getBoolEnv() = %v, %v; want false, nil", got, err)
	}

	t.Setenv("TEST_BOOL_VAR", "nope")
	if _, err := getBoolEnv("TEST_BOOL_VAR", true); err == nil {
		t.Error("expected error for invalid bool value")
	}
}
