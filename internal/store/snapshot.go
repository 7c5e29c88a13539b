package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// SnapshotOptions controls Snapshot.
type SnapshotOptions struct {
	// Since keeps only records whose start timestamp is at or after it.
	// Records without a start timestamp are dropped when Since is set.
	Since *int64
}

// SnapshotInfo describes a built snapshot.
type SnapshotInfo struct {
	Path  string
	Rows  int
	Bytes int64
}

// Snapshot writes an independent database file at dest holding the full
// schema, the settings (including origin_id), and the selected records.
//
// dest must not exist. The snapshot is a single self-contained file in
// rollback-journal mode. The source store is never modified.
func (s *Store) Snapshot(ctx context.Context, dest string, opts SnapshotOptions) (SnapshotInfo, error) {
	if _, err := os.Stat(dest); err == nil {
		return SnapshotInfo{}, &StorageError{Op: "snapshot", Path: dest, Err: os.ErrExist}
	} else if !errors.Is(err, os.ErrNotExist) {
		return SnapshotInfo{}, &StorageError{Op: "snapshot", Path: dest, Err: err}
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return SnapshotInfo{}, &StorageError{Op: "snapshot: copy", Path: dest, Err: err}
	}

	info, err := finishSnapshot(ctx, dest, opts)
	if err != nil {
		os.Remove(dest)
		return SnapshotInfo{}, &StorageError{Op: "snapshot", Path: dest, Err: err}
	}
	return info, nil
}

// finishSnapshot applies the since filter and compacts the copied file.
func finishSnapshot(ctx context.Context, path string, opts SnapshotOptions) (SnapshotInfo, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = DELETE"); err != nil {
		return SnapshotInfo{}, fmt.Errorf("set journal mode: %w", err)
	}

	if opts.Since != nil {
		_, err := db.ExecContext(ctx,
			"DELETE FROM command_history WHERE start_unix_timestamp IS NULL OR start_unix_timestamp < ?",
			*opts.Since,
		)
		if err != nil {
			return SnapshotInfo{}, fmt.Errorf("filter since: %w", err)
		}
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return SnapshotInfo{}, fmt.Errorf("compact: %w", err)
		}
	}

	info := SnapshotInfo{Path: path}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_history").Scan(&info.Rows); err != nil {
		return SnapshotInfo{}, fmt.Errorf("count: %w", err)
	}
	if err := db.Close(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("close: %w", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	info.Bytes = fi.Size()
	return info, nil
}
