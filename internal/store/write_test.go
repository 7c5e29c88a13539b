package store

import (
	"context"
	"testing"

	"github.com/roach88/shellhist/internal/history"
	"github.com/roach88/shellhist/internal/testutil"
)

func TestInsert_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testutil.NewRecord("git status", 1700000000, testutil.WithSession(42))
	inserted, err := s.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if !inserted {
		t.Fatal("Insert() = false for a new record")
	}

	recs := allRecords(t, s)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID == 0 {
		t.Error("stored record has no id")
	}
	if !history.Equal(got, rec) {
		t.Errorf("stored %v, want %v", got, rec)
	}
}

func TestInsert_DuplicateNaturalKeyIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testutil.NewRecord("make test", 100)
	if _, err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("first Insert() failed: %v", err)
	}

	// Same natural key, different non-key fields.
	dup := rec
	dup.SessionID = 999
	dup.ExitStatus = history.Int64(1)
	inserted, err := s.Insert(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate Insert() should not error: %v", err)
	}
	if inserted {
		t.Error("duplicate Insert() reported a new row")
	}

	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestInsert_NullAndEmptyCompareEqual(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	withNulls := testutil.NewRecord("ls", 5, testutil.WithHost(nil), testutil.WithDir(nil))
	withNulls.Username = nil
	withEmpty := testutil.NewRecord("ls", 5, testutil.WithHost([]byte{}), testutil.WithDir([]byte{}))
	withEmpty.Username = []byte{}

	insertAll(t, s, withNulls)
	inserted, err := s.Insert(ctx, withEmpty)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if inserted {
		t.Error("empty fields were treated as distinct from NULL")
	}

	// And the same NULL record twice.
	inserted, err = s.Insert(ctx, withNulls)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if inserted {
		t.Error("NULL fields were treated as distinct from each other")
	}
}

func TestInsert_NullStartDeduplicated(t *testing.T) {
	s := createTestStore(t)

	rec := testutil.NewRecord("echo hi", 0, testutil.WithoutStart())
	insertAll(t, s, rec, rec)

	zero := testutil.NewRecord("echo hi", 0)
	insertAll(t, s, zero)

	n, _ := s.Count(context.Background())
	if n != 2 {
		t.Errorf("Count() = %d, want 2 (NULL start and zero start are distinct)", n)
	}
}

func TestInsert_AnyKeyFieldDifferenceIsDistinct(t *testing.T) {
	s := createTestStore(t)

	base := testutil.NewRecord("vim", 10)
	variants := []history.Record{
		base,
		testutil.NewRecord("vim ", 10),
		testutil.NewRecord("vim", 11),
		testutil.NewRecord("vim", 10, testutil.WithShell("bash")),
		testutil.NewRecord("vim", 10, testutil.WithHost([]byte("other"))),
		testutil.NewRecord("vim", 10, testutil.WithDir([]byte("/tmp"))),
	}
	userVariant := base
	userVariant.Username = []byte("root")
	variants = append(variants, userVariant)

	insertAll(t, s, variants...)

	n, _ := s.Count(context.Background())
	if n != len(variants) {
		t.Errorf("Count() = %d, want %d", n, len(variants))
	}
}

func TestInsert_NonUTF8BytesRoundTrip(t *testing.T) {
	s := createTestStore(t)

	cmd := []byte{'e', 'c', 'h', 'o', ' ', 0xff, 0xfe, 0x00, 0x80}
	rec := testutil.NewRecord("", 77)
	rec.FullCommand = cmd
	rec.WorkingDirectory = []byte{'/', 0xc3, 0x28}
	insertAll(t, s, rec)

	got := allRecords(t, s)[0]
	if string(got.FullCommand) != string(cmd) {
		t.Errorf("full_command = %x, want %x", got.FullCommand, cmd)
	}
	if string(got.WorkingDirectory) != string(rec.WorkingDirectory) {
		t.Errorf("working_directory = %x, want %x", got.WorkingDirectory, rec.WorkingDirectory)
	}
}

func TestInsertBatch_CountsOnlyNewRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	clock := testutil.NewDeterministicClock(1000)
	recs := testutil.Commands(clock, "a", "b", "c")
	insertAll(t, s, recs[0])

	added, err := s.InsertBatch(ctx, append(recs, recs[1]))
	if err != nil {
		t.Fatalf("InsertBatch() failed: %v", err)
	}
	if added != 2 {
		t.Errorf("InsertBatch() added %d, want 2", added)
	}
}

// Seal tests

func TestSeal_TargetsMostRecentOpenRecordOfSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertAll(t, s,
		testutil.NewRecord("first", 1, testutil.WithSession(7)),
		testutil.NewRecord("other session", 2, testutil.WithSession(8)),
		testutil.NewRecord("second", 3, testutil.WithSession(7)),
	)

	sealed, err := s.Seal(ctx, 7, 10, 3)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if !sealed {
		t.Fatal("Seal() = false, want true")
	}

	byCmd := map[string]history.Record{}
	for _, r := range allRecords(t, s) {
		byCmd[string(r.FullCommand)] = r
	}
	second := byCmd["second"]
	if second.IsOpen() || *second.ExitStatus != 3 || *second.EndUnixTimestamp != 10 {
		t.Errorf("most recent record not sealed: %v", second)
	}
	if !byCmd["first"].IsOpen() {
		t.Error("older record of the session was sealed")
	}
	if !byCmd["other session"].IsOpen() {
		t.Error("record of another session was sealed")
	}
}

func TestSeal_SkipsAlreadySealedRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertAll(t, s,
		testutil.NewRecord("open", 1, testutil.WithSession(7)),
		testutil.NewRecord("done", 2, testutil.WithSession(7), testutil.Sealed(3, 0)),
	)

	sealed, err := s.Seal(ctx, 7, 20, 1)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if !sealed {
		t.Fatal("Seal() = false, want the remaining open record sealed")
	}

	for _, r := range allRecords(t, s) {
		switch string(r.FullCommand) {
		case "done":
			if *r.ExitStatus != 0 || *r.EndUnixTimestamp != 3 {
				t.Errorf("sealed record was overwritten: %v", r)
			}
		case "open":
			if r.IsOpen() {
				t.Error("open record was not sealed")
			}
		}
	}
}

func TestSeal_NoOpenRecordIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sealed, err := s.Seal(ctx, 12345, 1, 0)
	if err != nil {
		t.Fatalf("Seal() on empty session failed: %v", err)
	}
	if sealed {
		t.Error("Seal() reported success with no open record")
	}

	insertAll(t, s, testutil.NewRecord("x", 1, testutil.WithSession(5), testutil.Sealed(2, 0)))
	sealed, err = s.Seal(ctx, 5, 9, 9)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if sealed {
		t.Error("Seal() changed an already sealed session")
	}
}
