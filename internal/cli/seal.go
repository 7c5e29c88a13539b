package cli

import (
	"github.com/spf13/cobra"
)

// SealOptions holds flags for the seal command.
type SealOptions struct {
	*RootOptions
	SessionID        int64
	ExitStatus       int64
	EndUnixTimestamp int64
}

// NewSealCommand creates the seal command.
func NewSealCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SealOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Record how the last command of a session finished",
		Long: `Fill in the end time and exit status of the most recent unfinished
command of a session. Sealing a session with no unfinished command does nothing.

Example:
  shellhist seal --session-id 4242 --exit-status 0 --end-unix-timestamp 1700000003`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeal(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.SessionID, "session-id", 0, "shell session identifier (required)")
	cmd.Flags().Int64Var(&opts.ExitStatus, "exit-status", 0, "exit status of the command (required)")
	cmd.Flags().Int64Var(&opts.EndUnixTimestamp, "end-unix-timestamp", 0, "end time in unix seconds (required)")
	_ = cmd.MarkFlagRequired("session-id")
	_ = cmd.MarkFlagRequired("exit-status")
	_ = cmd.MarkFlagRequired("end-unix-timestamp")

	return cmd
}

func runSeal(opts *SealOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	sealed, err := st.Seal(cmd.Context(), opts.SessionID, opts.EndUnixTimestamp, opts.ExitStatus)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to seal command", err)
	}
	opts.logger().Debug("seal", "session_id", opts.SessionID, "sealed", sealed)

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(map[string]bool{"sealed": sealed})
	}
	return nil
}
