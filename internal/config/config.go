package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendAuto     = "auto"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	CacheBackend string `yaml:"cache_backend"`

	AuthorityURL            string `yaml:"authority_url"`
	AuthorityTimeoutSeconds int    `yaml:"authority_timeout_seconds"`
	AuthorityUserAgent      string `yaml:"authority_user_agent"`
	LoginURL                string `yaml:"login_url"`

	InvalidTTLHours     int  `yaml:"invalid_ttl_hours"`
	RejectMalformedKeys bool `yaml:"reject_malformed_keys"`

	AcceptancePolicyPath string `yaml:"acceptance_policy_path"`
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                addr,
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		LogLevel:                envDefault("LOG_LEVEL", "info"),
		LogFormat:               envDefault("LOG_FORMAT", "text"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 envIntDefault("REDIS_DB", 0),
		CacheBackend:            strings.ToLower(envDefault("CACHE_BACKEND", BackendAuto)),
		AuthorityURL:            envDefault("AUTHORITY_URL", "https://noskid.today/api/checkcert/"),
		AuthorityTimeoutSeconds: envIntDefault("AUTHORITY_TIMEOUT_SECONDS", 10),
		AuthorityUserAgent:      envDefault("AUTHORITY_USER_AGENT", "check.noskid.today/5.0"),
		LoginURL:                os.Getenv("LOGIN_URL"),
		InvalidTTLHours:         envIntDefault("INVALID_TTL_HOURS", 24),
		RejectMalformedKeys:     envBoolDefault("REJECT_MALFORMED_KEYS", true),
		AcceptancePolicyPath:    os.Getenv("ACCEPTANCE_POLICY_PATH"),
	}
}

// Load starts from FromEnv and applies the YAML file at path on top. Keys
// absent from the file keep their environment value. An empty path skips the
// file; the result is validated either way.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.CacheBackend {
	case "", BackendAuto, BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.CacheBackend == BackendPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("cache backend postgres requires POSTGRES_DSN")
	}
	if c.CacheBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("cache backend redis requires REDIS_ADDR")
	}
	return nil
}

// Backend resolves auto to the first configured store.
func (c Config) Backend() string {
	switch c.CacheBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
		return c.CacheBackend
	}
	if c.PostgresDSN != "" {
		return BackendPostgres
	}
	if c.RedisAddr != "" {
		return BackendRedis
	}
	return BackendMemory
}

func (c Config) AuthorityTimeout() time.Duration {
	if c.AuthorityTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AuthorityTimeoutSeconds) * time.Second
}

func (c Config) InvalidTTL() time.Duration {
	if c.InvalidTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.InvalidTTLHours) * time.Hour
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
