package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shellhist/internal/histfile"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Histfile  string
	Shellname string
	Hostname  string
	Username  string
}

// importResult is the import summary.
type importResult struct {
	Read  int `json:"read"`
	Added int `json:"added"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an existing shell history file",
		Long: `Import commands from a zsh extended history file, a bash history file,
or a JSON export. Importing the same file again adds nothing.

Example:
  shellhist import --shellname zsh --histfile ~/.zsh_history
  shellhist import --shellname json --histfile laptop.json.zst`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Histfile, "histfile", "", "history file to import (required)")
	cmd.Flags().StringVar(&opts.Shellname, "shellname", "", "file format: zsh, bash, or json (required)")
	cmd.Flags().StringVar(&opts.Hostname, "hostname", "", "host the history came from (default: configured or system hostname)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "user the history belongs to (default: current user)")
	_ = cmd.MarkFlagRequired("histfile")
	_ = cmd.MarkFlagRequired("shellname")

	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command) error {
	format, err := histfile.ParseFormat(opts.Shellname)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --shellname", err)
	}

	recs, err := histfile.Import(opts.Histfile, format, histfile.Options{
		Hostname: firstNonEmpty(opts.Hostname, opts.hostname()),
		Username: opts.Username,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read "+opts.Histfile, err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	added, err := st.InsertBatch(cmd.Context(), recs)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to import history", err)
	}
	opts.logger().Debug("import", "file", opts.Histfile, "read", len(recs), "added", added)

	f := opts.formatter(cmd)
	res := importResult{Read: len(recs), Added: added}
	if opts.Format == "json" {
		return f.Success(res)
	}
	fmt.Fprintln(f.Writer, Sprintf("Imported %d of %d commands", res.Added, res.Read))
	return nil
}
