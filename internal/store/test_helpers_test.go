package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/shellhist/internal/history"
	"github.com/roach88/shellhist/internal/testutil"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertAll inserts recs and fails the test on error.
func insertAll(t *testing.T, s *Store, recs ...history.Record) {
	t.Helper()
	for _, r := range recs {
		if _, err := s.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert(%v) failed: %v", r, err)
		}
	}
}

// allRecords returns every record in s, oldest first.
func allRecords(t *testing.T, s *Store) []history.Record {
	t.Helper()
	recs, err := s.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	return recs
}

// keySet returns the natural keys held by s.
func keySet(t *testing.T, s *Store) map[history.NaturalKey]bool {
	t.Helper()
	set := map[history.NaturalKey]bool{}
	for _, r := range allRecords(t, s) {
		set[r.Key()] = true
	}
	return set
}

func mustOrigin(t *testing.T, s *Store) string {
	t.Helper()
	id, err := s.OriginID(context.Background())
	if err != nil {
		t.Fatalf("OriginID() failed: %v", err)
	}
	return id
}

// snapshotOf builds a full snapshot of s in a temp directory.
func snapshotOf(t *testing.T, s *Store, opts SnapshotOptions) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if _, err := s.Snapshot(context.Background(), dest, opts); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	return dest
}

// allRecordsFixture returns the i-th record of a deterministic sequence.
func allRecordsFixture(i int) history.Record {
	return testutil.NewRecord(fmt.Sprintf("command number %d", i), int64(1700000000+i))
}
