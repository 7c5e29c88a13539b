package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shellhist/internal/history"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Shellname          string
	SessionID          int64
	Hostname           string
	Username           string
	WorkingDirectory   string
	ExitStatus         int64
	StartUnixTimestamp int64
	EndUnixTimestamp   int64

	// Now supplies the default start time (for testing).
	Now func() time.Time
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "insert [flags] COMMAND...",
		Short: "Record a command as it starts",
		Long: `Record one shell command. Shell hooks call this before the command runs
and call "seal" when it finishes.

Inserting the same command twice with the same start time, shell, user,
host, and directory stores it once.

Example:
  shellhist insert --shellname zsh --session-id 4242 -- git status`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Shellname, "shellname", "", "shell that ran the command (required)")
	cmd.Flags().Int64Var(&opts.SessionID, "session-id", 0, "shell session identifier (required)")
	cmd.Flags().StringVar(&opts.Hostname, "hostname", "", "host name (default: configured or system hostname)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "user name (default: current user)")
	cmd.Flags().StringVar(&opts.WorkingDirectory, "working-directory", "", "directory the command ran in")
	cmd.Flags().Int64Var(&opts.ExitStatus, "exit-status", 0, "exit status, when already known")
	cmd.Flags().Int64Var(&opts.StartUnixTimestamp, "start-unix-timestamp", 0, "start time in unix seconds (default: now)")
	cmd.Flags().Int64Var(&opts.EndUnixTimestamp, "end-unix-timestamp", 0, "end time in unix seconds, when already known")
	_ = cmd.MarkFlagRequired("shellname")
	_ = cmd.MarkFlagRequired("session-id")

	return cmd
}

func runInsert(opts *InsertOptions, cmd *cobra.Command, args []string) error {
	rec := history.Record{
		SessionID:   opts.SessionID,
		FullCommand: []byte(strings.Join(args, " ")),
		Shellname:   opts.Shellname,
		Hostname:    []byte(opts.Hostname),
		Username:    []byte(opts.Username),
	}
	if opts.Hostname == "" {
		rec.Hostname = []byte(opts.hostname())
	}
	if opts.Username == "" {
		rec.Username = []byte(currentUsername())
	}

	flags := cmd.Flags()
	if flags.Changed("working-directory") {
		rec.WorkingDirectory = []byte(opts.WorkingDirectory)
	}
	if flags.Changed("exit-status") {
		rec.ExitStatus = history.Int64(opts.ExitStatus)
	}
	if flags.Changed("start-unix-timestamp") {
		rec.StartUnixTimestamp = history.Int64(opts.StartUnixTimestamp)
	} else {
		rec.StartUnixTimestamp = history.Int64(opts.Now().Unix())
	}
	if flags.Changed("end-unix-timestamp") {
		rec.EndUnixTimestamp = history.Int64(opts.EndUnixTimestamp)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	inserted, err := st.Insert(cmd.Context(), rec)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to insert command", err)
	}
	opts.logger().Debug("insert", "record", rec, "inserted", inserted)

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(map[string]bool{"inserted": inserted})
	}
	return nil
}
