package testutil

import (
	"github.com/roach88/shellhist/internal/history"
)

// RecordOption adjusts a record built by NewRecord.
type RecordOption func(*history.Record)

// NewRecord builds an open zsh record for host "testhost", user "tester",
// working directory "/home/tester", session 1.
func NewRecord(command string, start int64, opts ...RecordOption) history.Record {
	rec := history.Record{
		SessionID:          1,
		FullCommand:        []byte(command),
		Shellname:          "zsh",
		Hostname:           []byte("testhost"),
		Username:           []byte("tester"),
		WorkingDirectory:   []byte("/home/tester"),
		StartUnixTimestamp: history.Int64(start),
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return rec
}

// WithSession sets the session id.
func WithSession(id int64) RecordOption {
	return func(r *history.Record) { r.SessionID = id }
}

// WithHost sets the hostname. Nil clears it.
func WithHost(host []byte) RecordOption {
	return func(r *history.Record) { r.Hostname = host }
}

// WithShell sets the shell name.
func WithShell(shell string) RecordOption {
	return func(r *history.Record) { r.Shellname = shell }
}

// WithDir sets the working directory. Nil clears it.
func WithDir(dir []byte) RecordOption {
	return func(r *history.Record) { r.WorkingDirectory = dir }
}

// WithoutStart clears the start timestamp.
func WithoutStart() RecordOption {
	return func(r *history.Record) { r.StartUnixTimestamp = nil }
}

// Sealed marks the record finished at end with exit status.
func Sealed(end, status int64) RecordOption {
	return func(r *history.Record) {
		r.EndUnixTimestamp = history.Int64(end)
		r.ExitStatus = history.Int64(status)
	}
}

// Commands builds one record per command, taking start times from clock.
func Commands(clock *DeterministicClock, commands ...string) []history.Record {
	out := make([]history.Record, 0, len(commands))
	for _, c := range commands {
		out = append(out, NewRecord(c, clock.Next()))
	}
	return out
}

// Keys returns the natural keys of recs as a set.
func Keys(recs []history.Record) map[history.NaturalKey]bool {
	set := make(map[history.NaturalKey]bool, len(recs))
	for _, r := range recs {
		set[r.Key()] = true
	}
	return set
}
