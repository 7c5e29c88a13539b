package history

import (
	"bytes"
	"fmt"
)

// Record is one captured shell command.
//
// Byte fields are stored verbatim and never assumed to be UTF-8. A nil byte
// slice or nil pointer means the value is absent (SQL NULL).
type Record struct {
	ID                 int64
	SessionID          int64
	FullCommand        []byte
	Shellname          string
	Hostname           []byte
	Username           []byte
	WorkingDirectory   []byte
	StartUnixTimestamp *int64
	EndUnixTimestamp   *int64
	ExitStatus         *int64
}

// IsOpen reports whether the record has not been sealed yet.
func (r Record) IsOpen() bool {
	return r.EndUnixTimestamp == nil && r.ExitStatus == nil
}

// Key returns the natural key of the record.
func (r Record) Key() NaturalKey {
	k := NaturalKey{
		FullCommand:      string(r.FullCommand),
		Shellname:        r.Shellname,
		Username:         string(r.Username),
		Hostname:         string(r.Hostname),
		WorkingDirectory: string(r.WorkingDirectory),
	}
	if r.StartUnixTimestamp != nil {
		k.HasStart = true
		k.StartUnixTimestamp = *r.StartUnixTimestamp
	}
	return k
}

// Duration returns the elapsed seconds of a sealed record.
func (r Record) Duration() (int64, bool) {
	if r.StartUnixTimestamp == nil || r.EndUnixTimestamp == nil {
		return 0, false
	}
	return *r.EndUnixTimestamp - *r.StartUnixTimestamp, true
}

// String renders the record for logs.
func (r Record) String() string {
	start := "-"
	if r.StartUnixTimestamp != nil {
		start = fmt.Sprint(*r.StartUnixTimestamp)
	}
	return fmt.Sprintf("record(session=%d start=%s shell=%s cmd=%q)", r.SessionID, start, r.Shellname, r.FullCommand)
}

// NaturalKey is the cross-machine identity of a Record.
//
// Absent username, hostname, and working directory compare equal to empty
// ones. An absent start timestamp is distinct from every present one.
// NaturalKey is comparable and can be used as a map key.
type NaturalKey struct {
	FullCommand        string
	StartUnixTimestamp int64
	HasStart           bool
	Shellname          string
	Username           string
	Hostname           string
	WorkingDirectory   string
}

// SameKey reports whether a and b are the same logical entry.
func SameKey(a, b Record) bool {
	return a.Key() == b.Key()
}

// Equal reports whether a and b carry identical field values, ignoring ID.
func Equal(a, b Record) bool {
	return a.SessionID == b.SessionID &&
		bytes.Equal(a.FullCommand, b.FullCommand) &&
		a.Shellname == b.Shellname &&
		nullBytesEqual(a.Hostname, b.Hostname) &&
		nullBytesEqual(a.Username, b.Username) &&
		nullBytesEqual(a.WorkingDirectory, b.WorkingDirectory) &&
		int64PtrEqual(a.StartUnixTimestamp, b.StartUnixTimestamp) &&
		int64PtrEqual(a.EndUnixTimestamp, b.EndUnixTimestamp) &&
		int64PtrEqual(a.ExitStatus, b.ExitStatus)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

func nullBytesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
