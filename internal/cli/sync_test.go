package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_RequiresTarget(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "history.db")

	res := runCLI(t, nil, "--db", db, "sync")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "directory path is required for directory-based sync")
}

func TestSync_ConflictingFlags(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "history.db")
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"send and receive only", []string{"sync", dir, "--send-only", "--receive-only"}, "mutually exclusive"},
		{"dir and remote", []string{"sync", dir, "--remote", "devbox"}, "choose one"},
		{"server and stdin-stdout", []string{"sync", "--server", "--stdin-stdout"}, "choose one"},
		{"negative since", []string{"sync", dir, "--since", "-1"}, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, nil, append([]string{"--db", db}, tt.args...)...)
			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestSync_Directory(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	shared := filepath.Join(tmp, "shared")
	dbA := filepath.Join(tmp, "a.db")
	dbB := filepath.Join(tmp, "b.db")

	mustRun(t, insertCmd(dbA, 1, 1000, "from-a")...)
	mustRun(t, insertCmd(dbB, 2, 2000, "from-b")...)

	mustRun(t, "--db", dbA, "sync", shared)
	mustRun(t, "--db", dbB, "sync", shared)
	res := mustRun(t, "--db", dbA, "sync", shared)
	assert.Contains(t, res.stdout, "Merged 1 peer files")

	want := map[string]bool{"from-a": true, "from-b": true}
	assert.Equal(t, want, commandSet(showAll(t, dbA)))
	assert.Equal(t, want, commandSet(showAll(t, dbB)))

	files, err := filepath.Glob(filepath.Join(shared, "*.db"))
	require.NoError(t, err)
	assert.Len(t, files, 2, "one snapshot per machine")
}

func TestSync_DirectoryFromConfig(t *testing.T) {
	home := isolateEnv(t)
	shared := filepath.Join(home, "shared")
	cfgPath := filepath.Join(home, "cfg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("sync:\n  directory: "+shared+"\n"), 0o644))
	db := filepath.Join(home, "history.db")

	mustRun(t, insertCmd(db, 1, 1000, "ls")...)
	mustRun(t, "--db", db, "--config", cfgPath, "sync")

	files, err := filepath.Glob(filepath.Join(shared, "testhost-*.db"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSync_DirectoryBadPeer(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	shared := filepath.Join(tmp, "shared")
	dbA := filepath.Join(tmp, "a.db")
	dbB := filepath.Join(tmp, "b.db")

	mustRun(t, insertCmd(dbB, 2, 2000, "from-b")...)
	mustRun(t, "--db", dbB, "sync", shared)
	require.NoError(t, os.WriteFile(filepath.Join(shared, "broken.db"), []byte("not a database"), 0o644))

	mustRun(t, insertCmd(dbA, 1, 1000, "from-a")...)
	res := runCLI(t, nil, "--db", dbA, "sync", shared)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "broken.db")

	assert.Equal(t, map[string]bool{"from-a": true, "from-b": true}, commandSet(showAll(t, dbA)))
}

// syncOverPipes connects a --stdin-stdout client to a --server peer.
func syncOverPipes(t *testing.T, clientArgs, serverArgs []string) (client, server cliRun) {
	t.Helper()
	toServer, fromClient := io.Pipe()
	toClient, fromServer := io.Pipe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server = runCLIPiped(t, toServer, fromServer, serverArgs...)
		fromServer.Close()
		toServer.Close()
	}()

	client = runCLIPiped(t, toClient, fromClient, clientArgs...)
	fromClient.Close()
	toClient.Close()
	wg.Wait()
	return client, server
}

func TestSync_StdinStdoutBidirectional(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	dbA := filepath.Join(tmp, "a.db")
	dbB := filepath.Join(tmp, "b.db")

	mustRun(t, insertCmd(dbA, 1, 1000, "x")...)
	mustRun(t, insertCmd(dbB, 2, 2000, "y")...)

	client, server := syncOverPipes(t,
		[]string{"--db", dbA, "sync", "--stdin-stdout"},
		[]string{"--db", dbB, "sync", "--server"},
	)
	require.Equal(t, ExitSuccess, server.code, server.stderr)
	require.Equal(t, ExitSuccess, client.code, client.stderr)
	assert.Contains(t, client.stderr, "1 added")

	want := map[string]bool{"x": true, "y": true}
	assert.Equal(t, want, commandSet(showAll(t, dbA)))
	assert.Equal(t, want, commandSet(showAll(t, dbB)))
}

func TestSync_StdinStdoutSendOnly(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	dbA := filepath.Join(tmp, "a.db")
	dbB := filepath.Join(tmp, "b.db")

	mustRun(t, insertCmd(dbA, 1, 1000, "x")...)
	mustRun(t, insertCmd(dbB, 2, 2000, "y")...)

	client, server := syncOverPipes(t,
		[]string{"--db", dbA, "sync", "--stdin-stdout", "--send-only"},
		[]string{"--db", dbB, "sync", "--server"},
	)
	require.Equal(t, ExitSuccess, server.code, server.stderr)
	require.Equal(t, ExitSuccess, client.code, client.stderr)

	assert.Equal(t, map[string]bool{"x": true}, commandSet(showAll(t, dbA)))
	assert.Equal(t, map[string]bool{"x": true, "y": true}, commandSet(showAll(t, dbB)))
}

func TestSync_ServerRejectsGarbage(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "history.db")
	mustRun(t, insertCmd(db, 1, 1000, "x")...)

	res := runCLI(t, strings.NewReader("push\n"), "--db", db, "sync", "--server")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "protocol")
	assert.Len(t, showAll(t, db), 1)
}
