package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "POSTGRES_DSN", "REDIS_ADDR", "CACHE_BACKEND", "AUTHORITY_URL",
		"AUTHORITY_TIMEOUT_SECONDS", "AUTHORITY_USER_AGENT", "INVALID_TTL_HOURS", "REJECT_MALFORMED_KEYS", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.AuthorityURL != "https://noskid.today/api/checkcert/" || cfg.AuthorityUserAgent != "check.noskid.today/5.0" {
		t.Fatalf("unexpected authority defaults %+v", cfg)
	}
	if cfg.AuthorityTimeout() != 10*time.Second || cfg.InvalidTTL() != 24*time.Hour {
		t.Fatalf("unexpected durations %s %s", cfg.AuthorityTimeout(), cfg.InvalidTTL())
	}
	if !cfg.RejectMalformedKeys {
		t.Fatalf("expected malformed keys to be rejected by default")
	}
	if cfg.Backend() != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Backend())
	}
}

func TestBackendAutoPrefersPostgres(t *testing.T) {
	cfg := Config{CacheBackend: BackendAuto, PostgresDSN: "postgres://x", RedisAddr: "localhost:6379"}
	if cfg.Backend() != BackendPostgres {
		t.Fatalf("expected postgres, got %q", cfg.Backend())
	}
	cfg.PostgresDSN = ""
	if cfg.Backend() != BackendRedis {
		t.Fatalf("expected redis, got %q", cfg.Backend())
	}
	cfg.CacheBackend = BackendMemory
	if cfg.Backend() != BackendMemory {
		t.Fatalf("expected explicit memory, got %q", cfg.Backend())
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("REJECT_MALFORMED_KEYS", "")
	t.Setenv("CACHE_BACKEND", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "checkd.yaml")
	body := "invalid_ttl_hours: 6\nreject_malformed_keys: false\nauthority_url: https://authority.example/check\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("expected env value to survive, got %q", cfg.HTTPAddr)
	}
	if cfg.InvalidTTL() != 6*time.Hour || cfg.RejectMalformedKeys {
		t.Fatalf("expected overlay to apply, got %+v", cfg)
	}
	if cfg.AuthorityURL != "https://authority.example/check" {
		t.Fatalf("unexpected authority url %q", cfg.AuthorityURL)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("cache_backend: mongo\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestEnvBoolDefault(t *testing.T) {
	t.Setenv("NOSKID_TEST_BOOL", "no")
	if envBoolDefault("NOSKID_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("NOSKID_TEST_BOOL", "maybe")
	if !envBoolDefault("NOSKID_TEST_BOOL", true) {
		t.Fatalf("expected default for unparseable value")
	}
}

func TestLoadValidatesEnvironment(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "mongo")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected unknown backend from env to be rejected")
	}

	t.Setenv("CACHE_BACKEND", " Memory ")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend() != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Backend())
	}
}
