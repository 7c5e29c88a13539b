package transport

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrConnect marks a failure to reach the remote host.
var ErrConnect = errors.New("cannot connect to host")

// sshConnectFailure is the exit status the ssh client uses for its own
// errors, as opposed to the remote command's.
const sshConnectFailure = 255

// exitGrace is how long a failed exchange waits for the child to exit on its
// own before it is killed.
const exitGrace = 2 * time.Second

// SSH runs the stream protocol against "sync --server" on a remote host,
// using the local ssh client for connection and authentication.
type SSH struct {
	Host string
	// SSHCommand is the ssh invocation, split with shell word rules.
	// Empty means "ssh".
	SSHCommand string
	// RemoteBinary is the program to run remotely. Empty means "shellhist".
	RemoteBinary string
	// RemoteDB is passed as --db to the remote side when set.
	RemoteDB string
	// SinceDays is passed as --since so the remote filters what it sends.
	SinceDays int
	Peer      *Peer
}

// Command returns the argv used to reach the remote side.
func (s *SSH) Command() ([]string, error) {
	if s.Host == "" {
		return nil, errors.New("remote host is empty")
	}
	if strings.HasPrefix(s.Host, "-") {
		return nil, fmt.Errorf("invalid remote host %q", s.Host)
	}

	sshCmd := s.SSHCommand
	if sshCmd == "" {
		sshCmd = "ssh"
	}
	words, err := shellquote.Split(sshCmd)
	if err != nil {
		return nil, fmt.Errorf("parse ssh command %q: %w", sshCmd, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("ssh command %q is empty", sshCmd)
	}

	bin := s.RemoteBinary
	if bin == "" {
		bin = "shellhist"
	}
	remote := []string{bin}
	if s.RemoteDB != "" {
		remote = append(remote, "--db", s.RemoteDB)
	}
	remote = append(remote, "sync", "--server")
	if s.SinceDays > 0 {
		remote = append(remote, "--since", strconv.Itoa(s.SinceDays))
	}

	// ssh hands the remote command to a shell, so it travels as one quoted word.
	argv := append(words, s.Host, shellquote.Join(remote...))
	return argv, nil
}

// Sync runs one exchange with the remote host.
func (s *SSH) Sync(ctx context.Context, mode Mode) (Result, error) {
	argv, err := s.Command()
	if err != nil {
		return Result{}, &TransportError{Op: "prepare", Peer: s.Host, Err: err}
	}
	if s.Peer.Name == "" {
		s.Peer.Name = s.Host
	}
	log := s.Peer.logger()
	log.Debug("spawning ssh", "argv", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, &TransportError{Op: "spawn", Peer: s.Host, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &TransportError{Op: "spawn", Peer: s.Host, Err: err}
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{}, &TransportError{Op: "spawn", Peer: s.Host, Err: err}
	}

	res, runErr := s.Peer.Initiate(ctx, stdout, stdin, mode)
	stdin.Close()

	var waitErr error
	if runErr == nil {
		waitErr = cmd.Wait()
	} else {
		waitErr = waitOrKill(cmd, exitGrace)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == sshConnectFailure {
		return res, &TransportError{Op: "connect", Peer: s.Host, Err: ErrConnect, Stderr: stderr.String()}
	}
	if runErr != nil {
		if waitErr != nil {
			return res, &TransportError{Op: "sync", Peer: s.Host, Err: runErr, Stderr: stderr.String()}
		}
		return res, runErr
	}
	if waitErr != nil {
		return res, &TransportError{Op: "remote exit", Peer: s.Host, Err: waitErr, Stderr: stderr.String()}
	}
	return res, nil
}

// waitOrKill waits for cmd to exit, killing it after grace.
func waitOrKill(cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		return <-done
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
