package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMaintenanceCommand creates the maintenance command.
func NewMaintenanceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Compact the database and refresh statistics",
		Long: `Upgrade an old database layout if needed, fold the write-ahead log back
into the database, reclaim free space, and refresh query planner statistics.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintenance(rootOpts, cmd)
		},
	}
	return cmd
}

func runMaintenance(opts *RootOptions, cmd *cobra.Command) error {
	// Open performs any pending layout migration.
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	ctx, cancel := signalContext(cmd, opts.logger())
	defer cancel()

	report, err := st.Maintain(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "maintenance failed", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(report)
	}
	fmt.Fprintln(f.Writer, Sprintf("%d commands, %d bytes before, %d bytes after",
		report.Rows, report.SizeBefore, report.SizeAfter))
	return nil
}
