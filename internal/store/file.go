package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/swarmlab/swarm/internal/domain"
)

// Journal entry types.
const (
	opUpsert = "upsert"
	opDelete = "delete"
)

// journalEntry is one line in the task journal. Upserts carry the full
// record; deletes are tombstones.
type journalEntry struct {
	Type   string             `json:"type"`
	TaskID string             `json:"taskId"`
	At     int64              `json:"at"`
	Record *domain.TaskRecord `json:"record,omitempty"`
}

// FileStore is a journal-backed domain.TaskStore. Writes append; reads
// fold the journal by taskId, last entry per task winning. Single-writer:
// one FileStore owns a journal path per process.
type FileStore struct {
	mu  sync.Mutex
	l   *Ledger
	now func() int64
}

// NewFileStore opens (or creates) the journal at path. now supplies unix
// millis; nil uses the wall clock.
func NewFileStore(path string, now func() int64) (*FileStore, error) {
	l, err := NewLedger(path)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = wallClockMs
	}
	return &FileStore{l: l, now: now}, nil
}

// SaveRecord appends an upsert line for the record.
func (s *FileStore) SaveRecord(rec domain.TaskRecord) error {
	if rec.TaskID == "" {
		return domain.ErrMissingTaskID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Append(journalEntry{Type: opUpsert, TaskID: rec.TaskID, At: s.now(), Record: &rec})
}

// DeleteRecord appends a tombstone for the task.
func (s *FileStore) DeleteRecord(taskID string) error {
	if taskID == "" {
		return domain.ErrMissingTaskID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Append(journalEntry{Type: opDelete, TaskID: taskID, At: s.now()})
}

// LoadRecords folds the journal into the current record set. Malformed
// lines are skipped; a tombstone erases any earlier upsert for its task.
// Records come back ordered by createdAt, then taskId.
func (s *FileStore) LoadRecords() ([]domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fold()
}

func (s *FileStore) fold() ([]domain.TaskRecord, error) {
	live := make(map[string]domain.TaskRecord)
	_, err := s.l.Scan(func(line []byte) error {
		var e journalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		switch e.Type {
		case opUpsert:
			if e.Record == nil || e.Record.TaskID == "" {
				return fmt.Errorf("upsert without record")
			}
			live[e.Record.TaskID] = *e.Record
		case opDelete:
			delete(live, e.TaskID)
		default:
			return fmt.Errorf("unknown journal op %q", e.Type)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.TaskRecord, 0, len(live))
	for _, rec := range live {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out, nil
}

// Compact atomically rewrites the journal to exactly one upsert line per
// given record, discarding all history and tombstones.
func (s *FileStore) Compact(recs []domain.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sorted := make([]domain.TaskRecord, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].TaskID < sorted[j].TaskID
	})

	entries := make([]any, 0, len(sorted))
	for i := range sorted {
		if sorted[i].TaskID == "" {
			return domain.ErrMissingTaskID
		}
		entries = append(entries, journalEntry{
			Type: opUpsert, TaskID: sorted[i].TaskID, At: now, Record: &sorted[i],
		})
	}
	return s.l.Rewrite(entries)
}
