package infra

import (
	"testing"
	"time"
)

func TestLoadAPIConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadAPIConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadAPIConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadAPIConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing")
	}
}

func TestLoadAPIConfigRequiresMinIOEndpoint(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_BACKEND", "MinIO")
	t.Setenv("MINIO_ENDPOINT", "")

	if _, err := LoadAPIConfig(); err == nil {
		t.Fatal("expected error when minio backend has no endpoint")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_POOL_SIZE", "")
	t.Setenv("NODE_LIVENESS_WINDOW", "")
	t.Setenv("BRIDGE_TIMEOUT", "")
	t.Setenv("PUBLIC_BASE_URL", "")
	t.Setenv("STORAGE_BACKEND", "")

	cfg := LoadConfig()
	if cfg.DBPoolSize != 30 {
		t.Fatalf("DBPoolSize = %d, want 30", cfg.DBPoolSize)
	}
	if cfg.LivenessWindow != 90*time.Second {
		t.Fatalf("LivenessWindow = %s, want 90s", cfg.LivenessWindow)
	}
	if cfg.BridgeTimeout != 120*time.Second {
		t.Fatalf("BridgeTimeout = %s, want 120s", cfg.BridgeTimeout)
	}
	if cfg.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.StorageBackend != "fs" {
		t.Fatalf("StorageBackend = %q, want fs", cfg.StorageBackend)
	}
}

func TestLoadConfigDurations(t *testing.T) {
	t.Setenv("NODE_LIVENESS_WINDOW", "45")
	t.Setenv("NODE_REAPER_INTERVAL", "1m")
	t.Setenv("BRIDGE_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()
	if cfg.LivenessWindow != 45*time.Second {
		t.Fatalf("LivenessWindow = %s, want 45s", cfg.LivenessWindow)
	}
	if cfg.ReaperInterval != time.Minute {
		t.Fatalf("ReaperInterval = %s, want 1m", cfg.ReaperInterval)
	}
	if cfg.BridgeTimeout != 120*time.Second {
		t.Fatalf("BridgeTimeout = %s, want fallback 120s", cfg.BridgeTimeout)
	}
}

func TestLoadConfigSplitsCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://a.example , ,http://b.example")

	cfg := LoadConfig()
	want := []string{"http://a.example", "http://b.example"}
	if len(cfg.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %#v, want %#v", cfg.CORSOrigins, want)
	}
	for i := range want {
		if cfg.CORSOrigins[i] != want[i] {
			t.Fatalf("CORSOrigins[%d] = %q, want %q", i, cfg.CORSOrigins[i], want[i])
		}
	}
}
