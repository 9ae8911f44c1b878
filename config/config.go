package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Model    ModelConfig
	Ledger   LedgerConfig
	Log      LogConfig
	MQTT     MQTTConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// Enabled reports whether protected routes require a bearer token.
func (j JWTConfig) Enabled() bool {
	return j.Secret != ""
}

type CORSConfig struct {
	AllowedOrigins string
}

type ModelConfig struct {
	SchemaPath   string
	ArtifactPath string
}

type LedgerConfig struct {
	AllowOutcomeOverwrite bool
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type MQTTConfig struct {
	URL         string
	Topic       string
	ClientID    string
	MetricsAddr string
}

func LoadConfig() (*Config, error) {
	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, errors.Wrap(err, "invalid SERVER_PORT")
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, errors.Wrap(err, "invalid DB_PORT")
	}

	dbMaxOpen, err := getIntEnv("DB_MAX_OPEN_CONNS", 20)
	if err != nil {
		return nil, errors.Wrap(err, "invalid DB_MAX_OPEN_CONNS")
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, errors.Wrap(err, "invalid REDIS_PORT")
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, errors.Wrap(err, "invalid REDIS_DB")
	}

	cacheTTL, err := getIntEnv("CACHE_TTL_SEC", 60)
	if err != nil {
		return nil, errors.Wrap(err, "invalid CACHE_TTL_SEC")
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, errors.Wrap(err, "invalid JWT_EXPIRY_HOURS")
	}

	overwrite, err := getBoolEnv("OUTCOME_OVERWRITE", false)
	if err != nil {
		return nil, errors.Wrap(err, "invalid OUTCOME_OVERWRITE")
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	if driver != "postgres" && driver != "sqlite" {
		return nil, errors.Newf("invalid DB_DRIVER %q: must be postgres or sqlite", driver)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Driver:       driver,
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         dbPort,
			User:         getEnv("DB_USER", "ledger"),
			Password:     getEnv("DB_PASSWORD", "ledger_dev_password"),
			Name:         getEnv("DB_NAME", "ledger"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			SQLitePath:   getEnv("DB_SQLITE_PATH", "predictions.db"),
			MaxOpenConns: dbMaxOpen,
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: cacheTTL,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpiryHours: jwtExpiry,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Model: ModelConfig{
			SchemaPath:   getEnv("MODEL_SCHEMA_PATH", "schema.yaml"),
			ArtifactPath: getEnv("MODEL_ARTIFACT_PATH", "model.yaml"),
		},
		Ledger: LedgerConfig{
			AllowOutcomeOverwrite: overwrite,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		MQTT: MQTTConfig{
			URL:         getEnv("MQTT_URL", "tcp://localhost:1883"),
			Topic:       getEnv("MQTT_TOPIC", "ledger/outcomes/+"),
			ClientID:    getEnv("MQTT_CLIENT_ID", ""),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
