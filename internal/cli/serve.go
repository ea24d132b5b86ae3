package cli

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gemmirror/internal/metrics"
	"github.com/matzehuels/gemmirror/internal/server"
	"github.com/matzehuels/gemmirror/pkg/observability"
	"github.com/matzehuels/gemmirror/pkg/report"
)

var _ server.History = (*report.Mongo)(nil)

// serveCommand creates the "serve" command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		flags    mirrorFlags
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mirror over HTTP",
		Long: `Serve the mirror read-only: artifacts under /gems/, published index files,
/healthz, /status and /metrics. With report.mongo_uri set, /status also lists
recent cycles (?history=N).

With --interval, a cycle runs at startup and then periodically. Cycles never
overlap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.apply(cmd, c.cfg())
			if cmd.Flags().Changed("addr") {
				cfg.Serve.Addr = addr
			}
			if cmd.Flags().Changed("interval") {
				cfg.Serve.Interval = interval
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", DefaultServeAddr, "listen address")
	cmd.Flags().DurationVar(&interval, "interval", 0, "sync interval, 0 disables syncing")

	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	logger := loggerFromContext(ctx)

	m := metrics.New(prometheus.NewRegistry())
	m.Register()
	defer observability.Reset()

	eng, b, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close(context.WithoutCancel(ctx))

	state := server.NewState()
	if cfg.Report.JSON != "" {
		st, err := report.ReadJSONFile(cfg.Report.JSON)
		switch {
		case err == nil:
			state.SetLast(st)
		case !os.IsNotExist(err):
			logger.Warn("ignoring previous report", "path", cfg.Report.JSON, "err", err)
		}
	}

	if cfg.Serve.Interval > 0 {
		sched, err := newScheduler(cfg.Serve.Interval, state, logger, func() {
			rep, err := runCycle(ctx, eng, b, logger)
			if err != nil && rep == nil {
				logger.Error("cycle not started", "err", err)
			}
			state.End(rep, err)
		})
		if err != nil {
			return err
		}
		sched.start()
		defer func() {
			if err := sched.stop(); err != nil {
				logger.Warn("stop scheduler", "err", err)
			}
		}()
	}

	var history server.History
	if b.history != nil {
		history = b.history
	}
	srv := server.New(server.Config{
		Addr:    cfg.Serve.Addr,
		Store:   eng.Store(),
		State:   state,
		Metrics: m.Handler(),
		History: history,
		Logger:  logger,
	})
	logger.Info("serving mirror", "root", eng.Store().Root(), "interval", cfg.Serve.Interval)
	return srv.Start(ctx)
}
