package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/shellhist/internal/history"
)

const recordColumns = `id, session_id, full_command, shellname, hostname, username,
	working_directory, exit_status, start_unix_timestamp, end_unix_timestamp`

// Filter selects records for Query. Zero values match everything.
type Filter struct {
	// Substring matches anywhere in full_command, byte-wise.
	Substring []byte
	SessionID *int64
	// Since keeps records whose start timestamp is at or after it.
	Since *int64
	// Limit keeps only the newest Limit matches. Zero means no limit.
	Limit int
}

// Query returns matching records ordered oldest first.
// With a Limit, the newest Limit matches are returned, still oldest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]history.Record, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Substring) > 0 {
		where = append(where, "instr(full_command, ?) > 0")
		args = append(args, f.Substring)
	}
	if f.SessionID != nil {
		where = append(where, "session_id = ?")
		args = append(args, *f.SessionID)
	}
	if f.Since != nil {
		where = append(where, "start_unix_timestamp >= ?")
		args = append(args, *f.Since)
	}

	query := "SELECT " + recordColumns + " FROM command_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_unix_timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "query: scan", Path: s.path, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_history").Scan(&n); err != nil {
		return 0, &StorageError{Op: "count", Path: s.path, Err: err}
	}
	return n, nil
}

// Setting returns the value stored under key.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "read setting " + key, Path: s.path, Err: err}
	}
	return value.String, value.Valid, nil
}

// OriginID returns the identifier assigned to this store at creation.
func (s *Store) OriginID(ctx context.Context) (string, error) {
	id, ok, err := s.Setting(ctx, SettingOriginID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &StorageError{Op: "read origin", Path: s.path, Err: errors.New("origin_id not set")}
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (history.Record, error) {
	var (
		rec        history.Record
		exitStatus sql.NullInt64
		start      sql.NullInt64
		end        sql.NullInt64
	)
	err := sc.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.FullCommand,
		&rec.Shellname,
		&rec.Hostname,
		&rec.Username,
		&rec.WorkingDirectory,
		&exitStatus,
		&start,
		&end,
	)
	if err != nil {
		return history.Record{}, err
	}
	rec.ExitStatus = int64Ptr(exitStatus)
	rec.StartUnixTimestamp = int64Ptr(start)
	rec.EndUnixTimestamp = int64Ptr(end)
	if rec.FullCommand == nil {
		rec.FullCommand = []byte{}
	}
	return rec, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
