package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/db"
	"github.com/slidedeck/explainer/internal/job"
)

const ledgerKey = "ledger"

// PersistentLedger stores the whole snapshot as one JSON value in badger.
// A single Set is one transaction, which gives the full-replace semantics
// without per-key bookkeeping.
type PersistentLedger struct {
	dbStore *db.Store
	log     zerolog.Logger
}

func NewPersistentLedger(dbStore *db.Store, log zerolog.Logger) *PersistentLedger {
	return &PersistentLedger{
		dbStore: dbStore,
		log:     log.With().Str("component", "ledger").Str("backend", "badger").Logger(),
	}
}

func (l *PersistentLedger) Load(ctx context.Context) Snapshot {
	data, err := l.dbStore.Get(job.SystemNamespace, ledgerKey)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			l.log.Warn().Err(err).Msg("ledger unreadable, starting empty")
		}
		return Snapshot{}
	}
	return decodeSnapshot(data, l.log)
}

func (l *PersistentLedger) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := l.dbStore.Set(job.SystemNamespace, ledgerKey, data); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func decodeSnapshot(data []byte, log zerolog.Logger) Snapshot {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("ledger corrupt, starting empty")
		return Snapshot{}
	}
	if snap == nil {
		return Snapshot{}
	}
	return snap
}
