package mirror

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/gemmirror/pkg/errors"
)

const (
	// DefaultUpstream is the public RubyGems repository.
	DefaultUpstream = "https://rubygems.org/"

	// DefaultParallelism is the number of concurrent transfers.
	DefaultParallelism = 10

	// DefaultIndexCacheTTL bounds how long decoded listings are kept.
	DefaultIndexCacheTTL = 7 * 24 * time.Hour

	maxParallelism = 256
)

// Config describes one mirror.
type Config struct {
	// Upstream is the base URL of the source repository.
	Upstream string `json:"upstream" toml:"upstream"`

	// Root is the local mirror directory. Artifacts go to Root/gems.
	Root string `json:"root" toml:"root"`

	// TempDir holds downloaded index payloads while they are decoded.
	TempDir string `json:"temp_dir" toml:"temp_dir"`

	// Parallelism is the maximum number of concurrent fetches or deletes.
	Parallelism int `json:"parallelism" toml:"parallelism"`

	// PublishIndex copies the index payloads into Root after a cycle so the
	// mirror can itself be used as a gem source.
	PublishIndex bool `json:"publish_index" toml:"publish_index"`

	// IndexCacheTTL is the lifetime of cached decoded listings.
	IndexCacheTTL time.Duration `json:"index_cache_ttl" toml:"-"`

	validated bool
}

// DefaultRoot returns ~/.gem/mirror.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gem", "mirror")
	}
	return filepath.Join(home, ".gem", "mirror")
}

// ValidateAndSetDefaults checks the configuration and fills in defaults.
// Calling it more than once has no further effect.
func (c *Config) ValidateAndSetDefaults() error {
	if c.validated {
		return nil
	}

	if c.Upstream == "" {
		c.Upstream = DefaultUpstream
	}
	if err := errors.ValidateURL(c.Upstream); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "upstream")
	}
	if !strings.HasSuffix(c.Upstream, "/") {
		c.Upstream += "/"
	}

	if c.Root == "" {
		c.Root = DefaultRoot()
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}

	switch {
	case c.Parallelism == 0:
		c.Parallelism = DefaultParallelism
	case c.Parallelism < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "parallelism must be positive, got %d", c.Parallelism)
	case c.Parallelism > maxParallelism:
		return errors.New(errors.ErrCodeInvalidConfig, "parallelism must be at most %d, got %d", maxParallelism, c.Parallelism)
	}

	if c.IndexCacheTTL == 0 {
		c.IndexCacheTTL = DefaultIndexCacheTTL
	}

	c.validated = true
	return nil
}
