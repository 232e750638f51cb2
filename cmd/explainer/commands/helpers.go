package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/config"
	"github.com/slidedeck/explainer/internal/db"
	"github.com/slidedeck/explainer/internal/explain"
	"github.com/slidedeck/explainer/internal/extract"
	"github.com/slidedeck/explainer/internal/job"
	"github.com/slidedeck/explainer/internal/ledger"
	"github.com/slidedeck/explainer/internal/storage"
	"github.com/slidedeck/explainer/internal/worker"
)

// app holds the components shared by serve and worker.
type app struct {
	files    *storage.Store
	dbStore  *db.Store
	ledger   ledger.Ledger
	registry job.Registry
}

// openApp opens file storage and the configured ledger. The badger
// backend locks the data directory, so only one process may open it; the
// file backend lets serve and worker run as separate processes.
func openApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	files, err := storage.NewStore(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	rt := &app{files: files}

	switch cfg.LedgerBackend {
	case config.LedgerBackendFile:
		rt.ledger = ledger.NewFileLedger(cfg.LedgerFile, log)
		rt.registry = job.NewMemoryRegistry()
	default:
		dbStore, err := db.NewStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		rt.dbStore = dbStore
		rt.ledger = ledger.NewPersistentLedger(dbStore, log)
		rt.registry = job.NewPersistentRegistry(dbStore)
	}

	log.Info().
		Str("storage_dir", cfg.StorageDir).
		Str("ledger_backend", cfg.LedgerBackend).
		Msg("app opened")
	return rt, nil
}

func (rt *app) Close() error {
	if rt.dbStore != nil {
		return rt.dbStore.Close()
	}
	return nil
}

func newEngine(cfg *config.Config, log zerolog.Logger) *explain.Engine {
	fetcher := explain.NewOpenAIClient(explain.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.OpenAITimeout,
	}, log)
	return explain.NewEngine(fetcher, explain.EngineOptions{
		FetchTimeout: cfg.FetchTimeout,
		Limit:        cfg.FanOutLimit,
	}, log)
}

func newWorker(cfg *config.Config, rt *app, log zerolog.Logger) *worker.Worker {
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set, explanations will fail")
	}
	return worker.New(rt.files, rt.ledger, extract.NewDetecting(), newEngine(cfg, log), worker.Options{
		PollInterval:  cfg.PollInterval,
		EscalateAfter: cfg.LedgerEscalateAfter,
	}, log)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
