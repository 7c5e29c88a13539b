package histfile

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/roach88/shellhist/internal/history"
)

// ByteString is a byte field in JSON form: a string when the bytes are valid
// UTF-8, otherwise an array of byte values.
type ByteString []byte

// MarshalJSON implements json.Marshaler.
func (b ByteString) MarshalJSON() ([]byte, error) {
	if utf8.Valid(b) {
		return json.Marshal(string(b))
	}
	ints := make([]int, len(b))
	for i, c := range b {
		ints[i] = int(c)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = ByteString(s)
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("byte string must be a string or an array of bytes: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Entry is the JSON form of one record.
type Entry struct {
	Command            ByteString  `json:"command"`
	Shellname          string      `json:"shellname"`
	WorkingDirectory   *ByteString `json:"working_directory"`
	Hostname           *ByteString `json:"hostname"`
	Username           *ByteString `json:"username"`
	ExitStatus         *int64      `json:"exit_status"`
	StartUnixTimestamp *int64      `json:"start_unix_timestamp"`
	EndUnixTimestamp   *int64      `json:"end_unix_timestamp"`
	SessionID          int64       `json:"session_id"`
}

// NewEntry converts a record to its JSON form.
func NewEntry(r history.Record) Entry {
	return Entry{
		Command:            ByteString(r.FullCommand),
		Shellname:          r.Shellname,
		WorkingDirectory:   optional(r.WorkingDirectory),
		Hostname:           optional(r.Hostname),
		Username:           optional(r.Username),
		ExitStatus:         r.ExitStatus,
		StartUnixTimestamp: r.StartUnixTimestamp,
		EndUnixTimestamp:   r.EndUnixTimestamp,
		SessionID:          r.SessionID,
	}
}

// Record converts e back to a record.
func (e Entry) Record() history.Record {
	return history.Record{
		SessionID:          e.SessionID,
		FullCommand:        nonNil(e.Command),
		Shellname:          e.Shellname,
		Hostname:           required(e.Hostname),
		Username:           required(e.Username),
		WorkingDirectory:   required(e.WorkingDirectory),
		StartUnixTimestamp: e.StartUnixTimestamp,
		EndUnixTimestamp:   e.EndUnixTimestamp,
		ExitStatus:         e.ExitStatus,
	}
}

// ReadJSON decodes a JSON array of entries, zstd-compressed or not.
func ReadJSON(r io.Reader) ([]history.Record, error) {
	zr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var entries []Entry
	if err := json.NewDecoder(zr).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode json history: %w", err)
	}
	recs := make([]history.Record, 0, len(entries))
	for i, e := range entries {
		if e.Shellname == "" {
			return nil, fmt.Errorf("decode json history: entry %d has no shellname", i)
		}
		recs = append(recs, e.Record())
	}
	return recs, nil
}

// WriteJSON encodes recs as an indented JSON array.
func WriteJSON(w io.Writer, recs []history.Record) error {
	entries := make([]Entry, len(recs))
	for i, r := range recs {
		entries[i] = NewEntry(r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode json history: %w", err)
	}
	return nil
}

func optional(b []byte) *ByteString {
	if b == nil {
		return nil
	}
	bs := ByteString(b)
	return &bs
}

func required(b *ByteString) []byte {
	if b == nil {
		return nil
	}
	return nonNil(*b)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
