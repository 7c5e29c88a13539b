package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shellhist/internal/histfile"
	"github.com/roach88/shellhist/internal/history"
	"github.com/roach88/shellhist/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output    string
	SinceDays int

	// Now anchors --since (for testing).
	Now func() time.Time
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write history as JSON",
		Long: `Write every stored command as a JSON array that "import --shellname json"
reads back. An output path ending in .zst is zstd-compressed.

Example:
  shellhist export --output history.json.zst
  shellhist export --since 7 | jq length`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "-", "output file (- for stdout)")
	cmd.Flags().IntVar(&opts.SinceDays, "since", 0, "only export commands from the last N days")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	if opts.SinceDays < 0 {
		return NewExitError(ExitCommandError, "--since must not be negative")
	}

	var filter store.Filter
	if opts.SinceDays > 0 {
		cutoff := opts.Now().Unix() - int64(opts.SinceDays)*secondsPerDay
		filter.Since = &cutoff
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	recs, err := st.Query(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to query history", err)
	}

	if err := writeExport(opts.Output, cmd.OutOrStdout(), recs); err != nil {
		return WrapExitError(ExitFailure, "failed to write export", err)
	}
	if opts.Output != "-" {
		fmt.Fprintln(cmd.ErrOrStderr(), Sprintf("Exported %d commands to %s", len(recs), opts.Output))
	}
	return nil
}

func writeExport(path string, stdout io.Writer, recs []history.Record) (err error) {
	w := stdout
	if path != "-" {
		f, openErr := os.Create(path)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	if !histfile.Compressed(path) {
		return histfile.WriteJSON(w, recs)
	}
	zw, err := histfile.NewWriter(w)
	if err != nil {
		return err
	}
	if err := histfile.WriteJSON(zw, recs); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
