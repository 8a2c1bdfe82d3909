package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the portalctl runtime configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Backend  BackendConfig `yaml:"backend"`
	Cache    CacheConfig   `yaml:"cache"`
	Log      LogConfig     `yaml:"log"`
	Charts   ChartsConfig  `yaml:"charts"`
	Sections string        `yaml:"sections"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	OpsAddr         string        `yaml:"ops_addr"`
	BasePath        string        `yaml:"base_path"`
	Transport       string        `yaml:"transport"`
	AbortSuperseded bool          `yaml:"abort_superseded"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
}

type BackendConfig struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	EngineTimeout time.Duration `yaml:"engine_timeout"`
	Validate      bool          `yaml:"validate"`
	Mock          bool          `yaml:"mock"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ChartsConfig struct {
	Theme      string `yaml:"theme"`
	AssetsHost string `yaml:"assets_host"`
}

// Transports accepted by Server.Transport.
const (
	TransportRouter = "router"
	TransportHTTP   = "http"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:       ":8080",
			OpsAddr:    ":9090",
			BasePath:   "/portal",
			Transport:  TransportRouter,
			SessionTTL: 30 * time.Minute,
		},
		Backend: BackendConfig{
			URL:           "http://localhost:8000",
			Timeout:       10 * time.Second,
			EngineTimeout: 120 * time.Second,
			Validate:      true,
		},
		Cache: CacheConfig{TTL: 5 * time.Minute, Prefix: "civic:"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then the env files, then the process
// environment. Missing env files are ignored; an empty path skips the file.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges a YAML document into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	str("PORTAL_ADDR", &cfg.Server.Addr)
	str("PORTAL_OPS_ADDR", &cfg.Server.OpsAddr)
	str("PORTAL_TRANSPORT", &cfg.Server.Transport)
	str("PORTAL_BACKEND_URL", &cfg.Backend.URL)
	str("PORTAL_API_KEY", &cfg.Backend.APIKey)
	str("PORTAL_SECTIONS", &cfg.Sections)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	var errs []error
	duration := func(key string, target *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*target = d
	}
	duration("PORTAL_BACKEND_TIMEOUT", &cfg.Backend.Timeout)
	duration("PORTAL_ENGINE_TIMEOUT", &cfg.Backend.EngineTimeout)
	duration("PORTAL_CACHE_TTL", &cfg.Cache.TTL)
	duration("PORTAL_SESSION_TTL", &cfg.Server.SessionTTL)

	if v, ok := lookup("PORTAL_MOCK"); ok && v != "" {
		mock, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: PORTAL_MOCK: %w", err))
		} else {
			cfg.Backend.Mock = mock
		}
	}
	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: REDIS_DB: %w", err))
		} else {
			cfg.Cache.RedisDB = db
		}
	}
	return errors.Join(errs...)
}

// Validate checks the fields every command depends on.
func (c Config) Validate() error {
	var errs []error
	if !c.Backend.Mock {
		u, err := url.Parse(c.Backend.URL)
		if c.Backend.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: backend.url must be an absolute url, got %q", c.Backend.URL))
		}
	}
	if c.Backend.Timeout <= 0 || c.Backend.EngineTimeout <= 0 {
		errs = append(errs, errors.New("config: backend timeouts must be positive"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("config: cache.ttl must not be negative"))
	}
	if c.Server.SessionTTL < 0 {
		errs = append(errs, errors.New("config: server.session_ttl must not be negative"))
	}
	switch c.Server.Transport {
	case TransportRouter, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("config: unknown server.transport %q", c.Server.Transport))
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("config: server.base_path must start with /, got %q", c.Server.BasePath))
	}
	return errors.Join(errs...)
}
