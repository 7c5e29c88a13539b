package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
)

// MergeResult reports the outcome of one Merge.
type MergeResult struct {
	Considered int `json:"considered"`
	Added      int `json:"added"`
}

var sqliteHeader = []byte("SQLite format 3\x00")

const mergeSQL = `
	INSERT INTO main.command_history
	(session_id, full_command, shellname, hostname, username,
	 working_directory, exit_status, start_unix_timestamp, end_unix_timestamp)
	SELECT session_id, full_command, shellname, hostname, username,
	       working_directory, exit_status, start_unix_timestamp, end_unix_timestamp
	FROM snap.command_history
	WHERE true
	ORDER BY id
	ON CONFLICT DO NOTHING
`

// Merge adds every record of the snapshot at path whose natural key is not
// already present. It never updates or deletes. All inserts happen in one
// transaction: on any error the store is left as it was.
//
// A snapshot that is not a readable history database yields a *MergeError
// before anything is written.
func (s *Store) Merge(ctx context.Context, path string) (MergeResult, error) {
	var result MergeResult

	conn, err := s.attachSnapshot(ctx, path)
	if err != nil {
		return result, err
	}
	defer s.detachSnapshot(conn)

	if err := validateSnapshot(ctx, conn); err != nil {
		return result, &MergeError{Path: path, Err: err}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, &StorageError{Op: "merge: begin", Path: s.path, Err: err}
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM snap.command_history").Scan(&result.Considered); err != nil {
		return MergeResult{}, &MergeError{Path: path, Err: fmt.Errorf("count: %w", err)}
	}

	res, err := tx.ExecContext(ctx, mergeSQL)
	if err != nil {
		if IsBusy(err) {
			return MergeResult{}, &StorageError{Op: "merge", Path: s.path, Err: err}
		}
		return MergeResult{}, &MergeError{Path: path, Err: err}
	}
	added, err := res.RowsAffected()
	if err != nil {
		return MergeResult{}, &StorageError{Op: "merge", Path: s.path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return MergeResult{}, &StorageError{Op: "merge: commit", Path: s.path, Err: err}
	}

	result.Added = int(added)
	return result, nil
}

// SnapshotOrigin returns the origin_id recorded in the snapshot at path, or
// "" when it carries none.
func (s *Store) SnapshotOrigin(ctx context.Context, path string) (string, error) {
	conn, err := s.attachSnapshot(ctx, path)
	if err != nil {
		return "", err
	}
	defer s.detachSnapshot(conn)

	var tables int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snap.sqlite_master WHERE type = 'table' AND name = 'settings'",
	).Scan(&tables)
	if err != nil {
		return "", &MergeError{Path: path, Err: err}
	}
	if tables == 0 {
		return "", nil
	}

	var origin sql.NullString
	err = conn.QueryRowContext(ctx, "SELECT value FROM snap.settings WHERE key = ?", SettingOriginID).Scan(&origin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &MergeError{Path: path, Err: err}
	}
	return origin.String, nil
}

// attachSnapshot pins a connection and attaches path to it as "snap".
func (s *Store) attachSnapshot(ctx context.Context, path string) (*sql.Conn, error) {
	if err := checkHeader(path); err != nil {
		return nil, &MergeError{Path: path, Err: err}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &StorageError{Op: "merge: connection", Path: s.path, Err: err}
	}
	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS snap", path); err != nil {
		conn.Close()
		return nil, &MergeError{Path: path, Err: fmt.Errorf("attach: %w", err)}
	}
	return conn, nil
}

func (s *Store) detachSnapshot(conn *sql.Conn) {
	// Detach even when the caller's context is already cancelled.
	_, _ = conn.ExecContext(context.Background(), "DETACH DATABASE snap")
	conn.Close()
}

// checkHeader verifies that path starts with the SQLite file header.
func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(buf, sqliteHeader) {
		return errors.New("not a SQLite database")
	}
	return nil
}

// validateSnapshot checks the attached file's integrity and that it carries a
// command_history table.
func validateSnapshot(ctx context.Context, conn *sql.Conn) error {
	var check string
	rows, err := conn.QueryContext(ctx, "PRAGMA snap.quick_check")
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if rows.Next() {
		err = rows.Scan(&check)
	}
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = rows.Err()
	}
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("integrity check: %s", check)
	}

	var tables int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snap.sqlite_master WHERE type = 'table' AND name = 'command_history'",
	).Scan(&tables)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return errors.New("no command_history table")
	}
	return nil
}
