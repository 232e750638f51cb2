// Package ledger records which uploaded decks have been explained.
//
// The ledger is the only source of truth for "already processed". Callers
// keep a canonical in-memory Snapshot and persist all of it on every change.
package ledger

import (
	"context"
	"sort"
	"sync"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

// Snapshot maps job keys to their lifecycle state.
type Snapshot map[string]Status

func (s Snapshot) Clone() Snapshot {
	cp := make(Snapshot, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// MarkProcessed moves key to processed. It returns false when key was
// already processed, so the transition happens exactly once.
func (s Snapshot) MarkProcessed(key string) bool {
	if s[key] == StatusProcessed {
		return false
	}
	s[key] = StatusProcessed
	return true
}

func (s Snapshot) IsProcessed(key string) bool {
	return s[key] == StatusProcessed
}

// Ledger persists snapshots.
type Ledger interface {
	// Load returns the last saved snapshot, or an empty one. It never fails:
	// absent or unreadable state means nothing has been processed yet.
	Load(ctx context.Context) Snapshot
	// Save replaces the persisted state with snap.
	Save(ctx context.Context, snap Snapshot) error
}

// DiffUnprocessed returns the keys in all that are missing from snap or still
// pending. The result is sorted and free of duplicates.
func DiffUnprocessed(all []string, snap Snapshot) []string {
	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, key := range all {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if snap[key] != StatusProcessed {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// MemoryLedger keeps the saved snapshot in process memory.
type MemoryLedger struct {
	mu    sync.RWMutex
	saved Snapshot
	saves int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Load(ctx context.Context) Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.saved == nil {
		return Snapshot{}
	}
	return l.saved.Clone()
}

func (l *MemoryLedger) Save(ctx context.Context, snap Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved = snap.Clone()
	l.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (l *MemoryLedger) Saves() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.saves
}
