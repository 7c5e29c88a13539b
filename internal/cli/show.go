package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shellhist/internal/histfile"
	"github.com/roach88/shellhist/internal/history"
	"github.com/roach88/shellhist/internal/store"
)

const timeFormat = "2006-01-02 15:04:05"

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Limit     int
	SessionID int64
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [SUBSTRING]",
		Short: "List recent commands",
		Long: `List the most recent commands, oldest first, optionally only those
containing SUBSTRING.

Example:
  shellhist show --limit 20 docker`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of commands to show (0 for all)")
	cmd.Flags().Int64Var(&opts.SessionID, "session-id", 0, "only show commands from this session")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command, args []string) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	filter := store.Filter{Limit: opts.Limit}
	if len(args) == 1 {
		filter.Substring = []byte(args[0])
	}
	if cmd.Flags().Changed("session-id") {
		filter.SessionID = history.Int64(opts.SessionID)
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

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		entries := make([]histfile.Entry, len(recs))
		for i, r := range recs {
			entries[i] = histfile.NewEntry(r)
		}
		return f.Success(entries)
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Start\tDuration\tStatus\tSession\tCommand")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%x\t%s\n",
			displayTime(r.StartUnixTimestamp), displayDuration(r), displayStatus(r.ExitStatus),
			r.SessionID, r.FullCommand)
	}
	return tw.Flush()
}

func displayTime(ts *int64) string {
	if ts == nil {
		return "n/a"
	}
	return time.Unix(*ts, 0).Format(timeFormat)
}

func displayDuration(r history.Record) string {
	d, ok := r.Duration()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%ds", d)
}

func displayStatus(status *int64) string {
	if status == nil {
		return "n/a"
	}
	return fmt.Sprint(*status)
}
