package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"ECO_ENV"`
	HTTPAddr string `mapstructure:"ECO_HTTP_ADDR"`

	Pools    PoolsConfig    `mapstructure:",squash"`
	Backend  BackendConfig  `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Snapshot SnapshotConfig `mapstructure:",squash"`
	Calc     CalcConfig     `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type PoolsConfig struct {
	CatalogFile   string  `mapstructure:"ECO_POOLS_FILE"`
	PollSchedule  string  `mapstructure:"ECO_POLL_SCHEDULE"`
	Source        string  `mapstructure:"ECO_POOL_SOURCE"` // "rest", "simulated"
	SimVolatility float64 `mapstructure:"ECO_SIM_VOLATILITY"`
}

type BackendConfig struct {
	URL     string        `mapstructure:"ECO_BACKEND_URL"`
	RPS     float64       `mapstructure:"ECO_BACKEND_RPS"`
	Timeout time.Duration `mapstructure:"ECO_BACKEND_TIMEOUT"`
}

type CacheConfig struct {
	Backend  string        `mapstructure:"ECO_KV_BACKEND"` // "memory", "redis"
	RedisURL string        `mapstructure:"ECO_REDIS_URL"`
	PoolTTL  time.Duration `mapstructure:"ECO_POOL_CACHE_TTL"`
}

type SnapshotConfig struct {
	Driver    string        `mapstructure:"ECO_SNAPSHOT_DRIVER"` // "sqlite", "postgres", "none"
	DSN       string        `mapstructure:"ECO_SNAPSHOT_DSN"`
	Retention time.Duration `mapstructure:"ECO_SNAPSHOT_RETENTION"` // 0 keeps everything
}

type CalcConfig struct {
	BoostCacheSize    int           `mapstructure:"ECO_BOOST_CACHE_SIZE"`
	CountdownInterval time.Duration `mapstructure:"ECO_COUNTDOWN_INTERVAL"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"ECO_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"ECO_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ECO_ENV", "dev")
	v.SetDefault("ECO_HTTP_ADDR", ":8080")
	v.SetDefault("ECO_POOLS_FILE", "pools.yaml")
	v.SetDefault("ECO_POLL_SCHEDULE", "@every 15s")
	v.SetDefault("ECO_POOL_SOURCE", "rest")
	v.SetDefault("ECO_SIM_VOLATILITY", 0.002)
	v.SetDefault("ECO_BACKEND_URL", "http://localhost:8081/api/app")
	v.SetDefault("ECO_BACKEND_RPS", 20)
	v.SetDefault("ECO_BACKEND_TIMEOUT", "10s")
	v.SetDefault("ECO_KV_BACKEND", "memory")
	v.SetDefault("ECO_REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("ECO_POOL_CACHE_TTL", "15s")
	v.SetDefault("ECO_SNAPSHOT_DRIVER", "sqlite")
	v.SetDefault("ECO_SNAPSHOT_DSN", "file:ecoearn.db?_pragma=busy_timeout(5000)")
	v.SetDefault("ECO_BOOST_CACHE_SIZE", 1024)
	v.SetDefault("ECO_SNAPSHOT_RETENTION", "720h")
	v.SetDefault("ECO_COUNTDOWN_INTERVAL", "1s")
	v.SetDefault("ECO_RATE_LIMIT_RPM", 600)
	v.SetDefault("ECO_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
}

func Load() (*Config, error) {
	loadDotEnvFiles()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Comma-separated lists
	if origins := v.GetString("ECO_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("ECO_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Pools.Source = strings.ToLower(strings.TrimSpace(c.Pools.Source))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Snapshot.Driver = strings.ToLower(strings.TrimSpace(c.Snapshot.Driver))
	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("ECO_HTTP_ADDR is required")
	}
	if c.Pools.CatalogFile == "" {
		return fmt.Errorf("ECO_POOLS_FILE is required")
	}
	switch c.Pools.Source {
	case "rest", "simulated":
	default:
		return fmt.Errorf("invalid ECO_POOL_SOURCE %q (must be rest or simulated)", c.Pools.Source)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("ECO_BACKEND_URL is required")
	}
	if c.Backend.RPS <= 0 {
		return fmt.Errorf("ECO_BACKEND_RPS must be positive, got %v", c.Backend.RPS)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("ECO_REDIS_URL is required when ECO_KV_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid ECO_KV_BACKEND %q (must be memory or redis)", c.Cache.Backend)
	}
	switch c.Snapshot.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Snapshot.DSN == "" {
			return fmt.Errorf("ECO_SNAPSHOT_DSN is required when ECO_SNAPSHOT_DRIVER=%s", c.Snapshot.Driver)
		}
	default:
		return fmt.Errorf("invalid ECO_SNAPSHOT_DRIVER %q (must be sqlite, postgres, or none)", c.Snapshot.Driver)
	}
	if c.Calc.CountdownInterval <= 0 {
		return fmt.Errorf("ECO_COUNTDOWN_INTERVAL must be positive")
	}
	if c.Security.RateLimitRPM <= 0 {
		return fmt.Errorf("ECO_RATE_LIMIT_RPM must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
