// Package histfile converts between shell history files and history records.
//
// zsh extended history and bash history (plain or with HISTTIMEFORMAT
// timestamp comments) can be imported. JSON is supported in both directions
// and may be zstd-compressed.
package histfile

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/roach88/shellhist/internal/history"
)

// Format names a history file layout.
type Format string

const (
	FormatZsh  Format = "zsh"
	FormatBash Format = "bash"
	FormatJSON Format = "json"
)

// ParseFormat validates a --shellname value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatZsh, FormatBash, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unsupported history format %q (want zsh, bash, or json)", s)
}

// Options supplies the context a plain shell history file does not carry.
type Options struct {
	// Hostname defaults to os.Hostname.
	Hostname string
	// Username defaults to the current user.
	Username string
	// SessionID groups all imported records. Zero derives one from the file path.
	SessionID int64
}

// Import reads the history file at path.
func Import(path string, format Format, opts Options) ([]history.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if format == FormatJSON {
		return ReadJSON(f)
	}

	if opts.SessionID == 0 {
		opts.SessionID = SessionID(path)
	}
	switch format {
	case FormatZsh:
		return ParseZsh(f, opts)
	case FormatBash:
		return ParseBash(f, opts)
	}
	return nil, fmt.Errorf("unsupported history format %q", format)
}

// SessionID derives a stable session id from a history file path, so importing
// the same file twice yields identical records.
func SessionID(path string) int64 {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	h := fnv.New64a()
	h.Write([]byte(path))
	// Keep it positive.
	return int64(h.Sum64() >> 1)
}

func (o Options) hostname() []byte {
	if o.Hostname != "" {
		return []byte(o.Hostname)
	}
	name, _ := os.Hostname()
	return []byte(name)
}

func (o Options) username() []byte {
	if o.Username != "" {
		return []byte(o.Username)
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return []byte(u.Username)
	}
	return []byte("unknown")
}

// dedup drops entries repeating the command and start time of the entry
// directly before them.
func dedup(recs []history.Record) []history.Record {
	if len(recs) == 0 {
		return recs
	}
	out := recs[:1]
	for _, r := range recs[1:] {
		last := out[len(out)-1]
		if bytes.Equal(r.FullCommand, last.FullCommand) && sameStart(r.StartUnixTimestamp, last.StartUnixTimestamp) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sameStart(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// readAll reads r whole, transparently decompressing zstd input.
func readAll(r io.Reader) ([]byte, error) {
	zr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
