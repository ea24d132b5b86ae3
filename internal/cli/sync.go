package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// mirrorFlags are the flags shared by commands that build an engine.
type mirrorFlags struct {
	upstream string
	root     string
	jobs     int
}

func (f *mirrorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.upstream, "upstream", "", "upstream repository URL (default "+mirror.DefaultUpstream+")")
	cmd.Flags().StringVar(&f.root, "root", "", "mirror directory (default ~/.gem/mirror)")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "concurrent transfers (default 10)")
}

// apply overrides cfg with the flags set on cmd.
func (f *mirrorFlags) apply(cmd *cobra.Command, cfg *Config) *Config {
	out := *cfg
	if cmd.Flags().Changed("upstream") {
		out.Upstream = f.upstream
	}
	if cmd.Flags().Changed("root") {
		out.Root = f.root
	}
	if cmd.Flags().Changed("jobs") {
		out.Parallelism = f.jobs
	}
	return &out
}

type syncOptions struct {
	mirrorFlags
	dryRun bool
	strict bool
}

// syncCommand creates the "sync" command.
func (c *CLI) syncCommand() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one mirror cycle",
		Long: `Refresh the upstream indexes, fetch every artifact the mirror is missing
and delete artifacts upstream no longer lists.

A cycle that finishes with item failures exits 0 unless --strict is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without changing the mirror")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when any item fails")

	return cmd
}

func (c *CLI) runSync(cmd *cobra.Command, opts syncOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	out := cmd.OutOrStdout()
	cfg := opts.apply(cmd, c.cfg())

	spinner := newSpinner(ctx, "refreshing index")
	eng, b, err := newEngine(ctx, cfg, logger, mirror.WithProgress(func(p mirror.Progress) {
		spinner.Update(progressMessage(string(p.Phase), p.Done, p.Total))
	}))
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	prog := newProgress(logger)
	if opts.dryRun {
		spinner.Start()
		plan, err := eng.Plan(ctx)
		spinner.Stop()
		if err != nil {
			return err
		}
		prog.done("Plan computed")
		printPlan(out, plan)
		return nil
	}

	spinner.Start()
	rep, err := runCycle(ctx, eng, b, logger)
	spinner.Stop()
	if err != nil {
		return err
	}

	prog.done("Cycle finished")
	printReport(out, rep)
	if opts.strict {
		return rep.Err()
	}
	return nil
}
