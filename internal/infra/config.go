package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBPoolSize  int
	JWTSecret   string
	SessionTTL  time.Duration
	LogFile     string
	GeoIPDBPath string

	StorageBackend string
	StoragePath    string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	CatalogPath         string
	PublicBaseURL       string
	LivenessWindow      time.Duration
	ReaperInterval      time.Duration
	NodeSelector        string
	DispatchConcurrency int
	DispatchAttempts    int
	DispatchTimeout     time.Duration

	OrchestratorURL string
	BridgeTimeout   time.Duration

	OTelExporter string
	OTelEndpoint string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// No variable is required here; binaries that need a database call LoadAPIConfig instead.
func LoadConfig() *Config {
	return &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPoolSize:  getEnvInt("DB_POOL_SIZE", 30),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),
		LogFile:     os.Getenv("LOG_FILE"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "fs")),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "imagebatch-artifacts"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		CatalogPath:         os.Getenv("CATALOG_PATH"),
		PublicBaseURL:       strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LivenessWindow:      getEnvDuration("NODE_LIVENESS_WINDOW", 90*time.Second),
		ReaperInterval:      getEnvDuration("NODE_REAPER_INTERVAL", 30*time.Second),
		NodeSelector:        strings.ToLower(getEnv("NODE_SELECTOR", "round_robin")),
		DispatchConcurrency: getEnvInt("DISPATCH_CONCURRENCY", 8),
		DispatchAttempts:    getEnvInt("DISPATCH_ATTEMPTS", 2),
		DispatchTimeout:     getEnvDuration("DISPATCH_TIMEOUT", 60*time.Second),

		OrchestratorURL: getEnv("ORCHESTRATOR_URL", "http://localhost:8080/soap"),
		BridgeTimeout:   getEnvDuration("BRIDGE_TIMEOUT", 120*time.Second),

		OTelExporter: strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER"))),
		OTelEndpoint: os.Getenv("OTEL_ENDPOINT"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
	}
}

// LoadAPIConfig loads configuration for the orchestrator service, which owns the database.
func LoadAPIConfig() (*Config, error) {
	cfg := LoadConfig()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.StorageBackend == "minio" && cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
