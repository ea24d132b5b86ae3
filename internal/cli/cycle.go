package cli

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// newEngine validates cfg and opens the backends it names. The caller
// closes the returned backends.
func newEngine(ctx context.Context, cfg *Config, logger *log.Logger, opts ...mirror.Option) (*mirror.Engine, *backends, error) {
	mcfg := cfg.Mirror()
	if err := mcfg.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}
	b, err := openBackends(ctx, cfg, mcfg.Root, logger)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]mirror.Option{
		mirror.WithCache(b.cache),
		mirror.WithLogger(logger),
	}, opts...)
	eng, err := mirror.New(mcfg, opts...)
	if err != nil {
		b.Close(ctx)
		return nil, nil, err
	}
	return eng, b, nil
}

// runCycle runs one locked cycle and hands the report to the sinks. Sink
// failures are logged and never change the outcome of the cycle.
func runCycle(ctx context.Context, eng *mirror.Engine, b *backends, logger *log.Logger) (*mirror.Report, error) {
	release, err := b.locker.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeLocked, err, "acquire lock for %s", eng.Store().Root())
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("release lock", "err", err)
		}
	}()

	rep, err := eng.Run(ctx)
	if rep != nil {
		// Sinks get their own context so an interrupted cycle is still recorded.
		if serr := b.sinks.Write(context.WithoutCancel(ctx), rep); serr != nil {
			logger.Warn("write report", "err", serr)
		}
	}
	return rep, err
}
