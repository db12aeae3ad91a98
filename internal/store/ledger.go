// Package store persists orchestrator task records. The default backend
// is an append-only JSONL journal that is folded into current state on
// load and compacted on demand; a SQLite backend is available for
// deployments that want queryable state.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

func wallClockMs() int64 { return time.Now().UnixMilli() }

// Ledger is a line-oriented JSON append file. It is the shared mechanics
// under both the task journal and the audit log file: append one record
// per line, scan all lines back, atomically rewrite.
type Ledger struct {
	path string
}

func NewLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &Ledger{path: path}, nil
}

// Append marshals v and appends it as one line, fsyncing before return.
func (l *Ledger) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return f.Sync()
}

// Scan reads every line, passing raw JSON to fn. Malformed lines are
// skipped and counted, never fatal: a torn final write must not take the
// whole journal down with it.
func (l *Ledger) Scan(fn func(line []byte) error) (skipped int, err error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			skipped++
			continue
		}
		if err := fn(line); err != nil {
			skipped++
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("scan ledger: %w", err)
	}
	if skipped > 0 {
		log.Printf("[store] skipped %d malformed line(s) in %s", skipped, l.path)
	}
	return skipped, nil
}

// Rewrite atomically replaces the ledger with the given entries, one per
// line, via a temp file and rename.
func (l *Ledger) Rewrite(entries []any) error {
	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger tmp: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("marshal ledger entry: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write ledger tmp: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush ledger tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync ledger tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close ledger tmp: %w", err)
	}
	return os.Rename(tmp, l.path)
}
