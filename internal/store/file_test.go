package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/swarmlab/swarm/internal/domain"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	now := int64(0)
	s, err := NewFileStore(path, func() int64 { now += 10; return now })
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s, path
}

func record(id string, createdAt int64, status domain.TaskStatus) domain.TaskRecord {
	return domain.TaskRecord{
		TaskID: id, Target: "agent:w", Status: status,
		Attempts: 1, MaxRetries: 2, CreatedAt: createdAt, UpdatedAt: createdAt,
		Request: domain.TaskRequest{
			Kind: domain.KindTaskRequest, ID: id, From: "agent:main",
			Priority: domain.PriorityNormal, Task: "work", CreatedAt: createdAt,
		},
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	a := record("t-a", 100, domain.StatusDispatched)
	b := record("t-b", 50, domain.StatusCompleted)
	for _, r := range []domain.TaskRecord{a, b} {
		if err := s.SaveRecord(r); err != nil {
			t.Fatalf("SaveRecord(%s): %v", r.TaskID, err)
		}
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d records, want 2", len(got))
	}
	// Ordered by createdAt.
	if got[0].TaskID != "t-b" || got[1].TaskID != "t-a" {
		t.Errorf("order = [%s %s], want [t-b t-a]", got[0].TaskID, got[1].TaskID)
	}
	if got[1].Status != domain.StatusDispatched || got[1].Attempts != 1 {
		t.Errorf("record did not round-trip: %+v", got[1])
	}
}

func TestFileStore_LastWriteWins(t *testing.T) {
	s, _ := newTestStore(t)

	r := record("t-1", 100, domain.StatusDispatched)
	if err := s.SaveRecord(r); err != nil {
		t.Fatal(err)
	}
	r.Status = domain.StatusCompleted
	r.Attempts = 2
	if err := s.SaveRecord(r); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d records, want 1 (fold by taskId)", len(got))
	}
	if got[0].Status != domain.StatusCompleted || got[0].Attempts != 2 {
		t.Errorf("latest write did not win: %+v", got[0])
	}
}

func TestFileStore_Tombstone(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SaveRecord(record("t-1", 100, domain.StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRecord("t-1"); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("loaded %d records after delete, want 0", len(got))
	}
}

func TestFileStore_SkipsMalformedLines(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.SaveRecord(record("t-1", 100, domain.StatusDispatched)); err != nil {
		t.Fatal(err)
	}
	// Simulate a torn write.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"type":"upsert","taskId":"t-2","rec`); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := s.SaveRecord(record("t-3", 200, domain.StatusDispatched)); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords after torn write: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d records, want 2 (torn line skipped)", len(got))
	}
}

func TestFileStore_Compact(t *testing.T) {
	s, path := newTestStore(t)

	r := record("t-1", 100, domain.StatusDispatched)
	for i := 0; i < 5; i++ {
		r.Attempts = i + 1
		if err := s.SaveRecord(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveRecord(record("t-2", 200, domain.StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRecord("t-2"); err != nil {
		t.Fatal(err)
	}

	live, err := s.LoadRecords()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Compact(live); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	// Exactly one line per live record.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("journal has %d lines after compact, want 1", len(lines))
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TaskID != "t-1" || got[0].Attempts != 5 {
		t.Errorf("post-compact state = %+v, want t-1 at attempt 5", got)
	}
}

func TestFileStore_MissingTaskID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SaveRecord(domain.TaskRecord{}); err == nil {
		t.Error("record without taskId accepted")
	}
	if err := s.DeleteRecord(""); err == nil {
		t.Error("delete without taskId accepted")
	}
}

func TestFileStore_EmptyJournal(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords on fresh store: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fresh store returned %d records", len(got))
	}
}
