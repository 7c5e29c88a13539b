package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/shellhist/internal/store"
)

// Peer runs one side of a stream exchange against a local store.
type Peer struct {
	Store *store.Store
	// Since filters the snapshots this side sends. Nil sends everything.
	Since *int64
	// TempDir holds in-flight snapshot files. Empty uses os.TempDir.
	TempDir string
	// MaxFrameSize caps accepted payloads. Zero uses DefaultMaxFrameSize.
	MaxFrameSize int64
	// Name identifies the remote end in errors and logs.
	Name   string
	Logger *slog.Logger
}

// Result reports what one exchange did on this side.
type Result struct {
	Mode          Mode              `json:"mode"`
	RowsSent      int               `json:"rows_sent"`
	BytesSent     int64             `json:"bytes_sent"`
	BytesReceived int64             `json:"bytes_received"`
	Merge         store.MergeResult `json:"merge"`
}

// Initiate drives an exchange from the requesting side: it writes the mode
// token, then sends and/or receives as the mode says. In bidirectional mode
// the send completes before the receive starts.
func (p *Peer) Initiate(ctx context.Context, r io.Reader, w io.Writer, mode Mode) (Result, error) {
	res := Result{Mode: mode}

	if err := WriteMode(w, mode); err != nil {
		if IsProtocolError(err) {
			return res, err
		}
		return res, &TransportError{Op: "send mode", Peer: p.name(), Err: err}
	}
	if err := flush(w); err != nil {
		return res, &TransportError{Op: "send mode", Peer: p.name(), Err: err}
	}
	p.logger().Debug("sync initiated", "peer", p.name(), "mode", mode)

	if mode.initiatorSends() {
		if err := p.send(ctx, w, &res); err != nil {
			return res, err
		}
	}
	if mode.initiatorReceives() {
		if err := p.receive(ctx, r, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Respond serves an exchange from the answering side: it reads the mode token
// and mirrors the initiator. In bidirectional mode the receive completes
// before the send starts.
func (p *Peer) Respond(ctx context.Context, r io.Reader, w io.Writer) (Result, error) {
	br := bufio.NewReader(r)
	mode, err := ReadMode(br)
	if err != nil {
		return Result{}, err
	}
	res := Result{Mode: mode}
	p.logger().Debug("sync requested", "peer", p.name(), "mode", mode)

	if mode.initiatorSends() {
		if err := p.receive(ctx, br, &res); err != nil {
			return res, err
		}
	}
	if mode.initiatorReceives() {
		if err := p.send(ctx, w, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// send builds a snapshot and writes it as one frame.
func (p *Peer) send(ctx context.Context, w io.Writer, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(p.TempDir, "shellhist-send-")
	if err != nil {
		return &store.StorageError{Op: "create temp dir", Path: p.TempDir, Err: err}
	}
	defer os.RemoveAll(dir)

	info, err := p.Store.Snapshot(ctx, filepath.Join(dir, "snapshot.db"), store.SnapshotOptions{Since: p.Since})
	if err != nil {
		return err
	}

	f, err := os.Open(info.Path)
	if err != nil {
		return &store.StorageError{Op: "open snapshot", Path: info.Path, Err: err}
	}
	defer f.Close()

	if err := WriteFrame(w, f, info.Bytes); err != nil {
		if IsProtocolError(err) {
			return err
		}
		return &TransportError{Op: "send", Peer: p.name(), Err: err}
	}
	if err := flush(w); err != nil {
		return &TransportError{Op: "send", Peer: p.name(), Err: err}
	}

	res.RowsSent = info.Rows
	res.BytesSent = info.Bytes
	p.logger().Debug("snapshot sent", "peer", p.name(), "rows", info.Rows, "bytes", info.Bytes)
	return nil
}

// receive reads one frame into a temp file and merges it.
func (p *Peer) receive(ctx context.Context, r io.Reader, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(p.TempDir, "shellhist-recv-")
	if err != nil {
		return &store.StorageError{Op: "create temp dir", Path: p.TempDir, Err: err}
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "incoming.db")
	f, err := os.Create(path)
	if err != nil {
		return &store.StorageError{Op: "create snapshot", Path: path, Err: err}
	}

	bw := bufio.NewWriterSize(f, 1<<16)
	n, err := ReadFrame(r, bw, p.MaxFrameSize)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &store.StorageError{Op: "write snapshot", Path: path, Err: cerr}
	}
	if err != nil {
		if IsProtocolError(err) || store.IsStorageError(err) {
			return err
		}
		return &TransportError{Op: "receive", Peer: p.name(), Err: err}
	}
	res.BytesReceived = n
	p.logger().Debug("snapshot received", "peer", p.name(), "bytes", n)

	merged, err := p.Store.Merge(ctx, path)
	if err != nil {
		return fmt.Errorf("merge from %s: %w", p.name(), err)
	}
	res.Merge = merged
	p.logger().Debug("snapshot merged", "peer", p.name(), "considered", merged.Considered, "added", merged.Added)
	return nil
}

// flush pushes out anything w buffers, so the other side is not left waiting.
func flush(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (p *Peer) name() string {
	if p.Name == "" {
		return "stdio"
	}
	return p.Name
}

func (p *Peer) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
