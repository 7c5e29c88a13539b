package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shellhist/internal/store"
	"github.com/roach88/shellhist/internal/transport"
)

// secondsPerDay converts --since days to a timestamp cutoff.
const secondsPerDay = 24 * 60 * 60

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Remote       string
	RemoteDB     string
	RemoteBinary string
	SSHCmd       string
	Server       bool
	StdinStdout  bool
	SendOnly     bool
	ReceiveOnly  bool
	SinceDays    int

	// Now anchors --since (for testing).
	Now func() time.Time
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "sync [DIR]",
		Short: "Merge history with other machines",
		Long: `Merge command history with other machines. Sync only ever adds missing
commands; it never changes or removes existing ones.

With DIR, every other machine's snapshot in the directory is merged and this
machine's snapshot there is replaced. With --remote, shellhist is run on the
host over ssh and both sides exchange snapshots. --stdin-stdout and --server
speak the same protocol over this process's own stdin and stdout.

Example:
  shellhist sync ~/Dropbox/shellhist
  shellhist sync --remote devbox --since 30
  shellhist sync --remote devbox --receive-only --remote-db /srv/history.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runSync(opts, cmd, dir)
		},
	}

	cmd.Flags().StringVar(&opts.Remote, "remote", "", "sync with this host over ssh")
	cmd.Flags().StringVar(&opts.RemoteDB, "remote-db", "", "database path on the remote host")
	cmd.Flags().StringVar(&opts.RemoteBinary, "remote-binary", "", "shellhist binary on the remote host (default from config)")
	cmd.Flags().StringVar(&opts.SSHCmd, "ssh-cmd", "", "ssh command, split with shell rules (default from config)")
	cmd.Flags().BoolVar(&opts.Server, "server", false, "answer a sync request on stdin/stdout")
	cmd.Flags().BoolVar(&opts.StdinStdout, "stdin-stdout", false, "start a sync request on stdin/stdout")
	cmd.Flags().BoolVar(&opts.SendOnly, "send-only", false, "only send local history")
	cmd.Flags().BoolVar(&opts.ReceiveOnly, "receive-only", false, "only receive remote history")
	cmd.Flags().IntVar(&opts.SinceDays, "since", 0, "only send commands from the last N days")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command, dir string) error {
	if opts.SendOnly && opts.ReceiveOnly {
		return NewExitError(ExitCommandError, "--send-only and --receive-only are mutually exclusive")
	}
	if opts.SinceDays < 0 {
		return NewExitError(ExitCommandError, "--since must not be negative")
	}

	targets := 0
	for _, set := range []bool{dir != "", opts.Remote != "", opts.Server, opts.StdinStdout} {
		if set {
			targets++
		}
	}
	if targets > 1 {
		return NewExitError(ExitCommandError, "choose one of DIR, --remote, --server, or --stdin-stdout")
	}
	if targets == 0 {
		dir = opts.Config.Sync.Directory
	}
	if targets == 0 && dir == "" {
		return NewExitError(ExitCommandError, "directory path is required for directory-based sync")
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	ctx, cancel := signalContext(cmd, opts.logger())
	defer cancel()

	switch {
	case opts.Server:
		return runServer(ctx, opts, cmd, st)
	case opts.StdinStdout:
		return runStdio(ctx, opts, cmd, st)
	case opts.Remote != "":
		return runRemote(ctx, opts, cmd, st)
	default:
		return runDirectory(ctx, opts, cmd, st, dir)
	}
}

func (o *SyncOptions) mode() transport.Mode {
	switch {
	case o.SendOnly:
		return transport.ModeSend
	case o.ReceiveOnly:
		return transport.ModeReceive
	}
	return transport.ModeBidirectional
}

// since converts --since to a start timestamp cutoff.
func (o *SyncOptions) since() *int64 {
	if o.SinceDays <= 0 {
		return nil
	}
	cutoff := o.Now().Unix() - int64(o.SinceDays)*secondsPerDay
	return &cutoff
}

func (o *SyncOptions) peer(st *store.Store, name string) *transport.Peer {
	return &transport.Peer{
		Store:        st,
		Since:        o.since(),
		MaxFrameSize: o.Config.Sync.MaxSnapshotBytes,
		Name:         name,
		Logger:       o.logger(),
	}
}

// runServer answers one exchange. stdout carries the protocol, so nothing
// else may be written to it.
func runServer(ctx context.Context, opts *SyncOptions, cmd *cobra.Command, st *store.Store) error {
	out := bufio.NewWriter(cmd.OutOrStdout())
	res, err := opts.peer(st, "client").Respond(ctx, cmd.InOrStdin(), out)
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	if err := out.Flush(); err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	opts.logger().Info("served sync",
		"mode", res.Mode, "sent_rows", res.RowsSent,
		"considered", res.Merge.Considered, "added", res.Merge.Added)
	return nil
}

// runStdio starts an exchange over this process's stdio. The summary goes to
// stderr since stdout is the protocol stream.
func runStdio(ctx context.Context, opts *SyncOptions, cmd *cobra.Command, st *store.Store) error {
	out := bufio.NewWriter(cmd.OutOrStdout())
	res, err := opts.peer(st, "server").Initiate(ctx, cmd.InOrStdin(), out, opts.mode())
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	if err := out.Flush(); err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), describeResult(res))
	return nil
}

func runRemote(ctx context.Context, opts *SyncOptions, cmd *cobra.Command, st *store.Store) error {
	ssh := &transport.SSH{
		Host:         opts.Remote,
		SSHCommand:   firstNonEmpty(opts.SSHCmd, opts.Config.Sync.SSHCommand),
		RemoteBinary: firstNonEmpty(opts.RemoteBinary, opts.Config.Sync.RemoteBinary),
		RemoteDB:     firstNonEmpty(opts.RemoteDB, opts.Config.Sync.RemoteDB),
		SinceDays:    opts.SinceDays,
		Peer:         opts.peer(st, opts.Remote),
	}

	res, err := ssh.Sync(ctx, opts.mode())
	if err != nil {
		if errors.Is(err, transport.ErrConnect) {
			return WrapExitError(ExitFailure, "Cannot connect to host "+opts.Remote, err)
		}
		return WrapExitError(ExitFailure, "sync with "+opts.Remote+" failed", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(res)
	}
	fmt.Fprintln(f.Writer, describeResult(res))
	return nil
}

func runDirectory(ctx context.Context, opts *SyncOptions, cmd *cobra.Command, st *store.Store, dir string) error {
	d := &transport.Directory{
		Store:    st,
		Dir:      dir,
		Hostname: opts.hostname(),
		Logger:   opts.logger(),
	}
	res, err := d.Sync(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "directory sync failed", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		if err := f.Success(res); err != nil {
			return err
		}
	} else {
		considered, added := res.Totals()
		fmt.Fprintln(f.Writer, Sprintf("Merged %d peer files: %d commands considered, %d added", len(res.Peers)-skipped(res), considered, added))
		fmt.Fprintln(f.Writer, Sprintf("Wrote %s (%d commands)", res.Written.Path, res.Written.Rows))
		for _, p := range res.Peers {
			switch {
			case p.Err != nil:
				fmt.Fprintf(f.GetErrWriter(), "Failed to merge %s: %v\n", p.Path, p.Err)
			case p.Skipped:
				f.VerboseLog("Skipped own snapshot %s", p.Path)
			default:
				f.VerboseLog("Merged %s: %d considered, %d added", p.Path, p.Merge.Considered, p.Merge.Added)
			}
		}
	}

	if n := res.Failed(); n > 0 {
		return NewExitError(ExitFailure, Sprintf("%d peer files could not be merged", n))
	}
	return nil
}

func skipped(res transport.DirectoryResult) int {
	n := 0
	for _, p := range res.Peers {
		if p.Skipped {
			n++
		}
	}
	return n
}

func describeResult(res transport.Result) string {
	return Sprintf("Sync (%s): sent %d commands (%d bytes), received %d bytes, %d considered, %d added",
		res.Mode, res.RowsSent, res.BytesSent, res.BytesReceived, res.Merge.Considered, res.Merge.Added)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
