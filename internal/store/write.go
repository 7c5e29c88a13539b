package store

import (
	"context"
	"fmt"

	"github.com/roach88/shellhist/internal/history"
)

const insertRecordSQL = `
	INSERT INTO command_history
	(session_id, full_command, shellname, hostname, username,
	 working_directory, exit_status, start_unix_timestamp, end_unix_timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING
`

// Insert adds rec to the store.
// A record whose natural key already exists is silently ignored and Insert
// returns false.
func (s *Store) Insert(ctx context.Context, rec history.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertRecordSQL, recordArgs(rec)...)
	if err != nil {
		return false, &StorageError{Op: "insert", Path: s.path, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "insert", Path: s.path, Err: err}
	}
	return n > 0, nil
}

// InsertBatch adds recs in a single transaction and returns how many were new.
func (s *Store) InsertBatch(ctx context.Context, recs []history.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "insert batch: begin", Path: s.path, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return 0, &StorageError{Op: "insert batch: prepare", Path: s.path, Err: err}
	}
	defer stmt.Close()

	added := 0
	for i, rec := range recs {
		res, err := stmt.ExecContext(ctx, recordArgs(rec)...)
		if err != nil {
			return 0, &StorageError{Op: fmt.Sprintf("insert batch: record %d", i), Path: s.path, Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, &StorageError{Op: "insert batch", Path: s.path, Err: err}
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "insert batch: commit", Path: s.path, Err: err}
	}
	return added, nil
}

// Seal records the end timestamp and exit status on the most recent open
// record of sessionID. It returns false when the session has no open record.
func (s *Store) Seal(ctx context.Context, sessionID, endUnixTimestamp, exitStatus int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE command_history
		SET exit_status = ?, end_unix_timestamp = ?
		WHERE id = (
			SELECT MAX(id) FROM command_history
			WHERE session_id = ?
			  AND exit_status IS NULL
			  AND end_unix_timestamp IS NULL
		)
	`, exitStatus, endUnixTimestamp, sessionID)
	if err != nil {
		return false, &StorageError{Op: "seal", Path: s.path, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "seal", Path: s.path, Err: err}
	}
	return n > 0, nil
}

// setSettingIfAbsent stores value under key unless key is already set.
func (s *Store) setSettingIfAbsent(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING",
		key, value,
	)
	if err != nil {
		return &StorageError{Op: "write setting " + key, Path: s.path, Err: err}
	}
	return nil
}

func recordArgs(rec history.Record) []any {
	return []any{
		rec.SessionID,
		notNullBytes(rec.FullCommand),
		rec.Shellname,
		nullBytes(rec.Hostname),
		nullBytes(rec.Username),
		nullBytes(rec.WorkingDirectory),
		nullInt64(rec.ExitStatus),
		nullInt64(rec.StartUnixTimestamp),
		nullInt64(rec.EndUnixTimestamp),
	}
}

// nullBytes binds a nil slice as SQL NULL and anything else as a BLOB.
func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// notNullBytes binds a nil slice as an empty BLOB.
func notNullBytes(b []byte) any {
	if b == nil {
		return []byte{}
	}
	return b
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
