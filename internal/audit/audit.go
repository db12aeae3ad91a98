// Package audit provides a tamper-evident, hash-chained log of
// orchestration events. Each entry's hash covers the previous entry's
// hash plus the entry's canonical JSON, and is signed with HMAC-SHA256.
// Any rewrite of history breaks verification at the altered entry.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/store"
)

// genesisHash anchors the chain. The first entry's prevHash is this
// constant rather than the empty string so a truncated-from-the-front
// log cannot pose as a fresh one.
var genesisHash = func() string {
	sum := sha256.Sum256([]byte("swarm-audit-genesis"))
	return hex.EncodeToString(sum[:])
}()

// Entry is one signed line in the audit log.
type Entry struct {
	ID        string         `json:"id"`
	At        int64          `json:"at"`
	EventType string         `json:"eventType"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload,omitempty"`
	PrevHash  string         `json:"prevHash"`
	Hash      string         `json:"hash"`
	Signature string         `json:"signature"`
	KeyID     string         `json:"keyId"`
}

// VerifyResult reports the outcome of a chain verification. FailedAt is
// the index of the first bad entry, -1 when the chain is intact.
type VerifyResult struct {
	OK       bool   `json:"ok"`
	Count    int    `json:"count"`
	FailedAt int    `json:"failedAt"`
	Reason   string `json:"reason,omitempty"`
}

// Log is an append-only signed audit log. Implements domain.AuditSink.
type Log struct {
	mu       sync.Mutex
	secret   []byte
	keyID    string
	lastHash string
	count    int
	ledger   *store.Ledger
	now      func() int64
}

// New opens the audit log at path, replaying any existing entries to
// recover the chain tip. The secret must be non-empty; verification of a
// log signed with a different secret fails.
func New(path string, secret []byte, keyID string, now func() int64) (*Log, error) {
	if len(secret) == 0 {
		return nil, domain.ErrMissingSecret
	}
	l, err := store.NewLedger(path)
	if err != nil {
		return nil, err
	}
	if keyID == "" {
		keyID = "audit-key-1"
	}
	log := &Log{
		secret:   secret,
		keyID:    keyID,
		lastHash: genesisHash,
		ledger:   l,
		now:      now,
	}
	entries, err := log.load()
	if err != nil {
		return nil, err
	}
	if n := len(entries); n > 0 {
		log.lastHash = entries[n-1].Hash
		log.count = n
	}
	return log, nil
}

// Record implements domain.AuditSink.
func (l *Log) Record(ev domain.AuditEvent) error {
	_, err := l.Append(ev.EventType, ev.Actor, ev.At, ev.Payload)
	return err
}

// Append signs and persists one event, extending the chain.
func (l *Log) Append(eventType, actor string, at int64, payload map[string]any) (Entry, error) {
	if eventType == "" {
		return Entry{}, fmt.Errorf("audit: event type is required")
	}
	if at == 0 && l.now != nil {
		at = l.now()
	}
	payload, err := normalizePayload(payload)
	if err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:        uuid.NewString(),
		At:        at,
		EventType: eventType,
		Actor:     actor,
		Payload:   payload,
		PrevHash:  l.lastHash,
	}
	e.Hash, err = entryHash(e)
	if err != nil {
		return Entry{}, err
	}
	e.Signature = l.sign(e.Hash)
	e.KeyID = l.keyID

	if err := l.ledger.Append(e); err != nil {
		return Entry{}, err
	}
	l.lastHash = e.Hash
	l.count++
	return e, nil
}

// Entries returns every parseable entry in log order.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Count returns how many entries the chain currently holds.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// VerifyChain re-derives every hash and signature from genesis. It fails
// closed: the first entry that does not check out stops verification and
// is reported by index.
func (l *Log) VerifyChain() (VerifyResult, error) {
	entries, err := l.Entries()
	if err != nil {
		return VerifyResult{}, err
	}

	prev := genesisHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return VerifyResult{Count: len(entries), FailedAt: i,
				Reason: fmt.Sprintf("%v: entry %d prevHash mismatch", domain.ErrChainBroken, i)}, nil
		}
		want, err := entryHash(e)
		if err != nil {
			return VerifyResult{}, err
		}
		if e.Hash != want {
			return VerifyResult{Count: len(entries), FailedAt: i,
				Reason: fmt.Sprintf("%v: entry %d content hash mismatch", domain.ErrChainBroken, i)}, nil
		}
		if !hmac.Equal([]byte(e.Signature), []byte(l.sign(e.Hash))) {
			return VerifyResult{Count: len(entries), FailedAt: i,
				Reason: fmt.Sprintf("%v: entry %d signature mismatch", domain.ErrChainBroken, i)}, nil
		}
		prev = e.Hash
	}
	return VerifyResult{OK: true, Count: len(entries), FailedAt: -1}, nil
}

func (l *Log) load() ([]Entry, error) {
	var out []Entry
	_, err := l.ledger.Scan(func(line []byte) error {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		if e.Hash == "" {
			return fmt.Errorf("entry without hash")
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// entryHash computes sha256(prevHash ‖ canonicalJSON(entry without hash
// and signature fields)).
func entryHash(e Entry) (string, error) {
	canon, err := canonicalJSON(map[string]any{
		"id":        e.ID,
		"at":        e.At,
		"eventType": e.EventType,
		"actor":     e.Actor,
		"payload":   e.Payload,
		"prevHash":  e.PrevHash,
	})
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// normalizePayload round-trips the payload through JSON so the value
// hashed at append time is identical to the value parsed back from disk
// during verification. Without this, struct-typed payload values hash
// with declared field order now and sorted map order after reload.
func normalizePayload(p map[string]any) (map[string]any, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("audit: normalize payload: %w", err)
	}
	return out, nil
}

func (l *Log) sign(hash string) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(hash))
	mac.Write([]byte(l.keyID))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalJSON renders v with object keys sorted recursively so hashing
// is independent of map iteration order.
func canonicalJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := canonicalJSON(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, vb...)
		}
		return append(buf, '}'), nil
	case []any:
		buf := []byte{'['}
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := canonicalJSON(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		return append(buf, ']'), nil
	default:
		return json.Marshal(v)
	}
}
