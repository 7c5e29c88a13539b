package histfile

import (
	"bytes"
	"io"
	"strconv"

	"github.com/roach88/shellhist/internal/history"
)

// ParseBash reads a bash history file. A "#<unix time>" line sets the start
// time of the commands after it; without one, start times are absent.
// Blank lines are skipped.
func ParseBash(r io.Reader, opts Options) ([]history.Record, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	host, user := opts.hostname(), opts.username()

	var (
		recs []history.Record
		last *int64
	)
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		if line[0] == '#' {
			if ts, err := strconv.ParseInt(string(line[1:]), 10, 64); err == nil {
				if ts > 0 {
					last = history.Int64(ts)
				}
				continue
			}
		}
		rec := history.Record{
			SessionID:   opts.SessionID,
			FullCommand: bytes.Clone(line),
			Shellname:   string(FormatBash),
			Hostname:    host,
			Username:    user,
		}
		if last != nil {
			rec.StartUnixTimestamp = history.Int64(*last)
		}
		recs = append(recs, rec)
	}
	return dedup(recs), nil
}
