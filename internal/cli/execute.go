package cli

import (
	"errors"
	"fmt"
	"io"
)

// Execute runs the command tree with args and returns the process exit code.
// Errors are reported on stderr, or on stdout as a JSON response when
// --format json is in effect.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteC()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	usage := false
	if !errors.As(err, &exitErr) {
		// Argument and required-flag checks fail before RunE.
		exitErr = WrapExitError(ExitCommandError, "invalid arguments", err)
		usage = true
	}

	format, _ := root.PersistentFlags().GetString("format")
	syncServer, _ := cmd.Flags().GetBool("server")
	if format == "json" && !syncServer {
		f := &OutputFormatter{Format: format, Writer: stdout}
		_ = f.Error(ErrorCode(exitErr), exitErr.Error(), nil)
	} else {
		fmt.Fprintln(stderr, "Error:", exitErr.Error())
	}
	if usage {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	return exitErr.Code
}
