package histfile

import (
	"bytes"
	"io"
	"strconv"

	"github.com/roach88/shellhist/internal/history"
)

// ParseZsh reads zsh EXTENDED_HISTORY lines of the form
//
//	: <start>:<elapsed>;<command>
//
// A command spanning several lines has each inner newline escaped with a
// trailing backslash. Lines that do not match are skipped.
func ParseZsh(r io.Reader, opts Options) ([]history.Record, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	host, user := opts.hostname(), opts.username()

	var recs []history.Record
	lines := bytes.Split(data, []byte("\n"))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		for bytes.HasSuffix(line, []byte(`\`)) && i+1 < len(lines) {
			i++
			line = append(append(line[:len(line)-1:len(line)-1], '\n'), lines[i]...)
		}

		start, elapsed, cmd, ok := splitZshLine(line)
		if !ok {
			continue
		}
		recs = append(recs, history.Record{
			SessionID:          opts.SessionID,
			FullCommand:        cmd,
			Shellname:          string(FormatZsh),
			Hostname:           host,
			Username:           user,
			StartUnixTimestamp: history.Int64(start),
			EndUnixTimestamp:   history.Int64(start + elapsed),
		})
	}
	return dedup(recs), nil
}

func splitZshLine(line []byte) (start, elapsed int64, cmd []byte, ok bool) {
	meta, cmd, found := bytes.Cut(line, []byte(";"))
	if !found || !bytes.HasPrefix(meta, []byte(":")) {
		return 0, 0, nil, false
	}
	startField, elapsedField, found := bytes.Cut(bytes.TrimSpace(meta[1:]), []byte(":"))
	if !found {
		return 0, 0, nil, false
	}
	start, err := strconv.ParseInt(string(bytes.TrimSpace(startField)), 10, 64)
	if err != nil {
		return 0, 0, nil, false
	}
	elapsed, err = strconv.ParseInt(string(bytes.TrimSpace(elapsedField)), 10, 64)
	if err != nil {
		return 0, 0, nil, false
	}
	return start, elapsed, bytes.Clone(cmd), true
}
