package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gemmirror/pkg/index"
)

// specsCommand creates the "specs" command, which refreshes the three
// upstream indexes without touching the mirror.
func (c *CLI) specsCommand() *cobra.Command {
	var flags mirrorFlags

	cmd := &cobra.Command{
		Use:   "specs",
		Short: "Refresh the upstream indexes and print their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			out := cmd.OutOrStdout()

			eng, b, err := newEngine(ctx, flags.apply(cmd, c.cfg()), logger)
			if err != nil {
				return err
			}
			defer b.Close(ctx)

			prog := newProgress(logger)
			spinner := newSpinner(ctx, "refreshing index")
			spinner.Start()
			remote, err := eng.RefreshIndex(ctx)
			spinner.Stop()
			if err != nil {
				return err
			}
			defer remote.Close()
			prog.done("Index refreshed")

			fmt.Fprintln(out, StyleTitle.Render(eng.Config().Upstream))
			for _, kind := range index.Kinds() {
				printCount(out, kind.String(), len(remote.Listings[kind]))
			}
			printCount(out, "artifacts", remote.Names.Len())
			for _, kind := range index.Kinds() {
				printDetail(out, "%s sha256 %s", kind.CompressedFilename(), remote.Digests[kind])
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
