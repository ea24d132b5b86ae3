package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gemmirror/pkg/cache"
	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// Backend names accepted by cache.backend and lock.backend.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// DefaultServeAddr is the listen address of "serve".
const DefaultServeAddr = ":8080"

// Config is the contents of the configuration file. Command-line flags
// override individual values after loading.
type Config struct {
	Upstream     string `toml:"upstream"`
	Root         string `toml:"root"`
	TempDir      string `toml:"temp_dir"`
	Parallelism  int    `toml:"parallelism"`
	PublishIndex bool   `toml:"publish_index"`

	Cache  CacheConfig  `toml:"cache"`
	Redis  RedisConfig  `toml:"redis"`
	Lock   LockConfig   `toml:"lock"`
	Report ReportConfig `toml:"report"`
	Serve  ServeConfig  `toml:"serve"`
}

type CacheConfig struct {
	Backend string        `toml:"backend"`
	Dir     string        `toml:"dir"`
	TTL     time.Duration `toml:"ttl"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type LockConfig struct {
	Backend    string        `toml:"backend"`
	StaleAfter time.Duration `toml:"stale_after"`
}

// ReportConfig selects where cycle reports are persisted in addition to
// the log.
type ReportConfig struct {
	JSON          string `toml:"json"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

type ServeConfig struct {
	Addr     string        `toml:"addr"`
	Interval time.Duration `toml:"interval"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = mirror.DefaultIndexCacheTTL
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = BackendFile
	}
	if c.Lock.StaleAfter == 0 {
		c.Lock.StaleAfter = 6 * time.Hour
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultServeAddr
	}
}

func (c *Config) validate() error {
	backends := [][2]string{
		{"cache.backend", c.Cache.Backend},
		{"lock.backend", c.Lock.Backend},
	}
	for _, b := range backends {
		switch b[1] {
		case BackendFile, BackendRedis, BackendNone:
		default:
			return errors.New(errors.ErrCodeInvalidConfig, "%s: unknown backend %q", b[0], b[1])
		}
	}
	if c.Parallelism < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "parallelism must not be negative")
	}
	if c.Serve.Interval < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "serve.interval must not be negative")
	}
	return nil
}

// Mirror returns the engine configuration.
func (c *Config) Mirror() mirror.Config {
	return mirror.Config{
		Upstream:      c.Upstream,
		Root:          c.Root,
		TempDir:       c.TempDir,
		Parallelism:   c.Parallelism,
		PublishIndex:  c.PublishIndex,
		IndexCacheTTL: c.Cache.TTL,
	}
}

// LoadConfig reads the TOML file at path. An empty path means the default
// location, which may be absent; an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := configPath()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config")
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPath returns $XDG_CONFIG_HOME/gemmirror/config.toml, falling back
// to ~/.config.
func configPath() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// cacheDir returns the configured cache directory or the XDG default.
func (c *Config) cacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	return cache.DefaultDir()
}
