package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shellhist/internal/histfile"
)

// isolateEnv keeps config discovery and env overrides away from the real
// user environment.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	t.Setenv("SHELLHIST_CONFIG", "")
	t.Setenv("SHELLHIST_DB_PATH", "")
	t.Setenv("SHELLHIST_HOSTNAME", "testhost")
	return home
}

type cliRun struct {
	stdout string
	stderr string
	code   int
}

func runCLI(t *testing.T, stdin io.Reader, args ...string) cliRun {
	t.Helper()
	var out bytes.Buffer
	res := runCLIPiped(t, stdin, &out, args...)
	res.stdout = out.String()
	return res
}

// runCLIPiped runs with stdout connected to w; only stderr is captured.
func runCLIPiped(t *testing.T, stdin io.Reader, w io.Writer, args ...string) cliRun {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var errOut bytes.Buffer
	code := Execute(args, stdin, w, &errOut)
	return cliRun{stderr: errOut.String(), code: code}
}

// mustRun runs a command that is expected to succeed.
func mustRun(t *testing.T, args ...string) cliRun {
	t.Helper()
	res := runCLI(t, nil, args...)
	require.Equal(t, ExitSuccess, res.code, "args %v\nstdout: %s\nstderr: %s", args, res.stdout, res.stderr)
	return res
}

func insertCmd(db string, session, start int, command ...string) []string {
	args := []string{
		"--db", db, "insert",
		"--shellname", "zsh",
		"--session-id", strconv.Itoa(session),
		"--start-unix-timestamp", strconv.Itoa(start),
		"--username", "tester",
		"--working-directory", "/home/tester",
		"--",
	}
	return append(args, command...)
}

// showAll returns every stored entry of db, oldest first.
func showAll(t *testing.T, db string, extra ...string) []histfile.Entry {
	t.Helper()
	args := append([]string{"--db", db, "--format", "json", "show", "--limit", "0"}, extra...)
	res := mustRun(t, args...)

	var resp struct {
		Status string           `json:"status"`
		Data   []histfile.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func commandSet(entries []histfile.Entry) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[string(e.Command)] = true
	}
	return set
}
