// Package cli implements the gemmirror command-line interface.
//
// The main commands are:
//   - sync: run one reconciliation cycle against the upstream repository
//   - specs: refresh the upstream indexes and print their sizes
//   - serve: serve the mirror over HTTP and optionally sync on an interval
//   - cache: manage the decoded-index cache
//
// All commands support --verbose (-v) for debug-level logging and --config
// to point at a TOML configuration file.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gemmirror/pkg/buildinfo"
)

// appName is the application name used for directories and display.
const appName = "gemmirror"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	config     *Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "gemmirror keeps a local mirror of a RubyGems repository in sync",
		Long: `gemmirror downloads the upstream gem indexes, fetches every artifact the
local mirror is missing and removes artifacts upstream no longer lists.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.config = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/gemmirror/config.toml)")

	root.AddCommand(c.syncCommand())
	root.AddCommand(c.specsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// cfg returns the loaded configuration, or defaults when no command has
// loaded one yet.
func (c *CLI) cfg() *Config {
	if c.config == nil {
		c.config = DefaultConfig()
	}
	return c.config
}
