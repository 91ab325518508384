package config

import (
	"fmt"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EngineChrome   = "chrome"
	EngineSoftware = "software"

	defaultConfigPath = "config/config.yaml"
)

// Config is the full service configuration as read from YAML.
type Config struct {
	Server struct {
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		Prefork        bool   `yaml:"prefork"`
		PublicBaseURL  string `yaml:"public_base_url"`
		StaticDir      string `yaml:"static_dir"`
		BodyLimitBytes int    `yaml:"body_limit_bytes"`
	} `yaml:"server"`

	Limits struct {
		MaxUploadBytes int `yaml:"max_upload_bytes"`
		MaxImageBytes  int `yaml:"max_image_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		ImageCacheEnabled bool          `yaml:"image_cache_enabled"`
		ImageCacheTTL     time.Duration `yaml:"image_cache_ttl"`
		RedisHost         string        `yaml:"redis_host"`
		RateLimitDB       int           `yaml:"redis_rate_db"`
		ImageCacheDB      int           `yaml:"redis_image_db"`
	} `yaml:"cache"`

	Render struct {
		Engine          string `yaml:"engine"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
		ChromePath      string `yaml:"chrome_path"`
		ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int    `yaml:"chrome_pool_size"`
		UserDataDir     string `yaml:"user_data_dir"`
	} `yaml:"render"`

	RateLimiter struct {
		UserLimit int           `yaml:"user_limit"`
		Interval  time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`
}

// Load reads the config from $CONFIG_PATH, or config/config.yaml when unset.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom reads, defaults and validates the config at path. Startup cannot
// continue on a bad config, so every problem panics.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	// Allow common container env var to override chrome_path.
	if cfg.Render.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.Render.ChromePath = v
		}
	}

	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

// ApplyDefaults fills zero values with the values the service ships with.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "./public"
	}
	if cfg.Server.BodyLimitBytes == 0 {
		cfg.Server.BodyLimitBytes = 12 * 1024 * 1024
	}
	if cfg.Limits.MaxUploadBytes == 0 {
		cfg.Limits.MaxUploadBytes = 10 * 1024 * 1024
	}
	if cfg.Limits.MaxImageBytes == 0 {
		cfg.Limits.MaxImageBytes = 8 * 1024 * 1024
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Cache.ImageCacheTTL == 0 {
		cfg.Cache.ImageCacheTTL = 10 * time.Minute
	}
	if cfg.Render.Engine == "" {
		cfg.Render.Engine = EngineChrome
	}
	if cfg.Render.TimeoutSecs == 0 {
		cfg.Render.TimeoutSecs = 15
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
}

// Validate reports the first invalid value in cfg.
func Validate(cfg Config) error {
	switch {
	case cfg.Render.Engine != EngineChrome && cfg.Render.Engine != EngineSoftware:
		return fmt.Errorf("render.engine must be %q or %q, got %q", EngineChrome, EngineSoftware, cfg.Render.Engine)
	case cfg.Render.TimeoutSecs < 0:
		return fmt.Errorf("render.timeout_secs must not be negative")
	case cfg.Render.ChromePoolSize < 0:
		return fmt.Errorf("render.chrome_pool_size must not be negative")
	case cfg.Limits.MaxUploadBytes < 0 || cfg.Limits.MaxImageBytes < 0:
		return fmt.Errorf("limits must not be negative")
	case cfg.RateLimiter.UserLimit < 0:
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	case cfg.RateLimiter.Interval < 0:
		return fmt.Errorf("rate_limiter.interval must not be negative")
	case cfg.Cache.ImageCacheTTL < 0:
		return fmt.Errorf("cache.image_cache_ttl must not be negative")
	}

	if cfg.Server.PublicBaseURL != "" {
		u, err := neturl.ParseRequestURI(cfg.Server.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("server.public_base_url must be an absolute http(s) URL, got %q", cfg.Server.PublicBaseURL)
		}
	}
	return nil
}

// BaseURL returns the configured public base URL without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimRight(c.Server.PublicBaseURL, "/")
}
