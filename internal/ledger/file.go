package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileLedger keeps the snapshot in a JSON sidecar file. Writes go through a
// temp file and a rename, so another process reading the file sees either
// the previous snapshot or the new one.
type FileLedger struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

func NewFileLedger(path string, log zerolog.Logger) *FileLedger {
	return &FileLedger{
		path: path,
		log:  log.With().Str("component", "ledger").Str("backend", "file").Str("path", path).Logger(),
	}
}

func (l *FileLedger) Load(ctx context.Context) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.log.Warn().Err(err).Msg("ledger unreadable, starting empty")
		}
		return Snapshot{}
	}
	return decodeSnapshot(data, l.log)
}

func (l *FileLedger) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
