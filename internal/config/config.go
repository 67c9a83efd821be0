package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

type TelemetryConfig struct {
	Port            string
	LogLevel        string
	JWTSecret       string
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string
	Postgres        DBConfig
}

type AuthConfig struct {
	Port            string
	LogLevel        string
	JWTSecret       string
	RedisAddr       string
	RedisPassword   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Postgres        DBConfig
}

type AssistantConfig struct {
	Port                string
	LogLevel            string
	JWTSecret           string
	OllamaHost          string
	OllamaModel         string
	OllamaContextLength int
	TelemetryServiceURL string
}

type SimulatorConfig struct {
	LogLevel        string
	TelemetryAPIURL string
	AuthAPIURL      string
	UserEmail       string
	UserPassword    string
}

func LoadTelemetry() *TelemetryConfig {
	cfg := &TelemetryConfig{
		Port:            getEnv("TELEMETRY_SERVICE_PORT", "8001"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		MQTTBrokerURL:   strings.TrimSpace(os.Getenv("MQTT_BROKER_URL")),
		MQTTClientID:    getEnv("TELEMETRY_MQTT_CLIENT_ID", "telemetry-service"),
		MQTTTopicPrefix: getEnv("TELEMETRY_MQTT_TOPIC_PREFIX", "home-energy/telemetry/"),
		Postgres:        loadDB(),
	}
	slog.Info("telemetry-service config loaded", "port", cfg.Port, "mqtt", cfg.MQTTBrokerURL != "")
	return cfg
}

func LoadAuth() *AuthConfig {
	cfg := &AuthConfig{
		Port:            getEnv("AUTH_SERVICE_PORT", "8000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		Postgres:        loadDB(),
	}
	slog.Info("auth-service config loaded", "port", cfg.Port, "redis", cfg.RedisAddr != "")
	return cfg
}

func LoadAssistant() *AssistantConfig {
	cfg := &AssistantConfig{
		Port:                getEnv("ASSISTANT_SERVICE_PORT", "8002"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		OllamaHost:          getEnv("OLLAMA_HOST", "http://ollama:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "llama3.1:8b"),
		OllamaContextLength: getInt("OLLAMA_CONTEXT_LENGTH", 8192),
		TelemetryServiceURL: getEnv("TELEMETRY_SERVICE_URL", "http://telemetry-service:8001"),
	}
	slog.Info("assistant-service config loaded", "port", cfg.Port, "model", cfg.OllamaModel)
	return cfg
}

func LoadSimulator() *SimulatorConfig {
	cfg := &SimulatorConfig{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		TelemetryAPIURL: getEnv("TELEMETRY_API_URL", "http://localhost:8001"),
		AuthAPIURL:      getEnv("AUTH_API_URL", "http://localhost:8000"),
		UserEmail:       getEnv("SIM_USER_EMAIL", "test@example.com"),
		UserPassword:    getEnv("SIM_USER_PASSWORD", "test123"),
	}
	slog.Info("simulator config loaded", "telemetry", cfg.TelemetryAPIURL, "auth", cfg.AuthAPIURL)
	return cfg
}

func loadDB() DBConfig {
	return DBConfig{
		User:     strings.TrimSpace(os.Getenv("POSTGRES_USER")),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   strings.TrimSpace(os.Getenv("POSTGRES_DB")),
		Host:     strings.TrimSpace(os.Getenv("POSTGRES_HOST")),
		Port:     strings.TrimSpace(os.Getenv("POSTGRES_PORT")),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// SetupLogging installs a text slog handler at the configured level as the
// process default.
func SetupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
