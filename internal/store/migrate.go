package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// isLegacyLayout reports whether command_history exists without the
// coalesced natural-key index.
func isLegacyLayout(tx *sql.Tx) (bool, error) {
	var tables int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'command_history'",
	).Scan(&tables); err != nil {
		return false, fmt.Errorf("inspect tables: %w", err)
	}
	if tables == 0 {
		return false, nil
	}

	var indexes int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_command_history_natural_key'",
	).Scan(&indexes); err != nil {
		return false, fmt.Errorf("inspect indexes: %w", err)
	}
	return indexes == 0, nil
}

// migrateToV1 rebuilds a legacy command_history table under the coalesced
// natural key. Of each group of rows sharing a natural key only the lowest id
// survives. It runs inside the caller's schema transaction.
func migrateToV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE command_history_v1 (
			id                   INTEGER PRIMARY KEY,
			session_id           INTEGER NOT NULL,
			full_command         BLOB    NOT NULL,
			shellname            TEXT    NOT NULL,
			hostname             BLOB,
			username             BLOB,
			working_directory    BLOB,
			exit_status          INTEGER,
			start_unix_timestamp INTEGER,
			end_unix_timestamp   INTEGER
		)`,
		`INSERT INTO command_history_v1
			(id, session_id, full_command, shellname, hostname, username,
			 working_directory, exit_status, start_unix_timestamp, end_unix_timestamp)
		SELECT id, session_id, full_command, shellname, hostname, username,
			working_directory, exit_status, start_unix_timestamp, end_unix_timestamp
		FROM command_history
		WHERE id IN (
			SELECT MIN(id) FROM command_history
			GROUP BY full_command,
				COALESCE(start_unix_timestamp, x''),
				shellname,
				COALESCE(username, x''),
				COALESCE(hostname, x''),
				COALESCE(working_directory, x'')
		)`,
		`DROP TABLE command_history`,
		`ALTER TABLE command_history_v1 RENAME TO command_history`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

// MaintenanceReport summarizes a Maintain run.
type MaintenanceReport struct {
	Rows       int   `json:"rows"`
	SizeBefore int64 `json:"size_before"`
	SizeAfter  int64 `json:"size_after"`
}

// Maintain checkpoints the WAL, compacts the file, and refreshes planner
// statistics. Any schema migration has already run in Open.
func (s *Store) Maintain(ctx context.Context) (MaintenanceReport, error) {
	report := MaintenanceReport{SizeBefore: s.diskSize()}

	stmts := []string{
		"PRAGMA wal_checkpoint(TRUNCATE)",
		"VACUUM",
		"ANALYZE",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return report, &StorageError{Op: "maintenance", Path: s.path, Err: fmt.Errorf("%s: %w", stmt, err)}
		}
	}

	rows, err := s.Count(ctx)
	if err != nil {
		return report, err
	}
	report.Rows = rows
	report.SizeAfter = s.diskSize()
	return report, nil
}

// diskSize returns the size of the database file plus its WAL.
func (s *Store) diskSize() int64 {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return total
}
