package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "relgraph.toml"

// EnvPrefix prefixes environment overrides, e.g. RELGRAPH_BACKEND_URL=http://host:8080
const EnvPrefix = "RELGRAPH_"

// Config holds all configuration for the application
type Config struct {
	Port       int              `koanf:"port"`
	Watch      bool             `koanf:"watch"`
	Backend    BackendConfig    `koanf:"backend"`
	Resolver   ResolverConfig   `koanf:"resolver"`
	Stream     StreamConfig     `koanf:"stream"`
	SessionLog SessionLogConfig `koanf:"sessionlog"`
	History    HistoryConfig    `koanf:"history"`
	Log        LogConfig        `koanf:"log"`
}

// BackendConfig locates the entity/relationship backend.
type BackendConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Rate    float64       `koanf:"rate"` // requests per second
}

// ResolverConfig tunes entity resolution.
type ResolverConfig struct {
	Size     int           `koanf:"size"`
	MinChars int           `koanf:"min_chars"`
	Debounce time.Duration `koanf:"debounce"`
}

// StreamConfig tunes the push channel session.
type StreamConfig struct {
	HandshakeTimeout    time.Duration `koanf:"handshake_timeout"`
	HeartbeatInterval   time.Duration `koanf:"heartbeat_interval"`
	HeartbeatTimeout    time.Duration `koanf:"heartbeat_timeout"`
	CheckInterval       time.Duration `koanf:"check_interval"`
	ReconnectAttempts   int           `koanf:"reconnect_attempts"`
	ReconnectBackoff    time.Duration `koanf:"reconnect_backoff"`
	ReconnectMaxBackoff time.Duration `koanf:"reconnect_max_backoff"`
}

type SessionLogConfig struct {
	Capacity int `koanf:"capacity"`
}

type HistoryConfig struct {
	Path string `koanf:"path"` // empty disables history
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":      "port",
	"watch":     "watch",
	"backend":   "backend.url",
	"rate":      "backend.rate",
	"size":      "resolver.size",
	"history":   "history.path",
	"log-level": "log.level",
	"log-json":  "log.json",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":  3000,
		"watch": false,
		"backend": map[string]interface{}{
			"url":     "http://localhost:8080",
			"timeout": 10 * time.Second,
			"rate":    10.0,
		},
		"resolver": map[string]interface{}{
			"size":      5,
			"min_chars": 2,
			"debounce":  300 * time.Millisecond,
		},
		"stream": map[string]interface{}{
			"handshake_timeout":     5 * time.Second,
			"heartbeat_interval":    30 * time.Second,
			"heartbeat_timeout":     5 * time.Second,
			"check_interval":        time.Second,
			"reconnect_attempts":    5,
			"reconnect_backoff":     time.Second,
			"reconnect_max_backoff": 30 * time.Second,
		},
		"sessionlog": map[string]interface{}{
			"capacity": 200,
		},
		"history": map[string]interface{}{
			"path": "relgraph.db",
		},
		"log": map[string]interface{}{
			"level": "info",
			"json":  false,
		},
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The file is optional unless a non-default path was asked for.
	if path == "" {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if path != DefaultFile || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// RELGRAPH_STREAM_HANDSHAKE_TIMEOUT -> stream.handshake_timeout
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[fl.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(f, fl)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RegisterFlags adds the flags Load understands to a flag set.
func RegisterFlags(f *pflag.FlagSet) {
	f.Int("port", 3000, "Port for the web server")
	f.Bool("watch", false, "Reload the config file when it changes")
	f.String("backend", "http://localhost:8080", "Backend base URL")
	f.Float64("rate", 10, "Backend requests per second")
	f.Int("size", 5, "Number of candidates requested per entity search")
	f.String("history", "relgraph.db", "Search history database (empty disables)")
	f.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	f.Bool("log-json", false, "Log as JSON")
}

// Validate checks values that would otherwise fail later in obscure ways.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.Backend.URL)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Resolver.MinChars < 0 {
		return fmt.Errorf("resolver.min_chars must not be negative")
	}
	if c.Stream.ReconnectAttempts < 0 {
		return fmt.Errorf("stream.reconnect_attempts must not be negative")
	}
	return nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
