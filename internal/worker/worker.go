// Package worker runs the background loop that explains uploaded decks.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/explain"
	"github.com/slidedeck/explainer/internal/extract"
	"github.com/slidedeck/explainer/internal/job"
	"github.com/slidedeck/explainer/internal/ledger"
	"github.com/slidedeck/explainer/internal/storage"
)

// Files is the part of the file store the worker reads and writes.
type Files interface {
	List(namespace, prefix string) ([]string, error)
	Get(namespace, path string) ([]byte, error)
	Put(namespace, path string, content []byte) error
}

type Options struct {
	PollInterval time.Duration
	// EscalateAfter is the number of consecutive ledger save failures after
	// which each further failure is logged for operators.
	EscalateAfter int
}

// CycleReport summarises one scan-and-process pass.
type CycleReport struct {
	Scanned   int
	Skipped   int
	Pending   int
	Processed int
	Failed    int
	Abandoned int
	LedgerErr error
}

type Worker struct {
	files     Files
	ledger    ledger.Ledger
	extractor extract.Extractor
	engine    *explain.Engine
	opts      Options
	log       zerolog.Logger

	mu           sync.Mutex
	snap         ledger.Snapshot
	dirty        bool
	saveFailures int
}

func New(files Files, l ledger.Ledger, extractor extract.Extractor, engine *explain.Engine, opts Options, log zerolog.Logger) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.EscalateAfter <= 0 {
		opts.EscalateAfter = 3
	}
	return &Worker{
		files:     files,
		ledger:    l,
		extractor: extractor,
		engine:    engine,
		opts:      opts,
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Run processes pending jobs every PollInterval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.opts.PollInterval).Msg("worker started")
	for {
		report := w.RunCycle(ctx)
		if report.Pending > 0 || report.Failed > 0 {
			w.log.Info().
				Int("pending", report.Pending).
				Int("processed", report.Processed).
				Int("failed", report.Failed).
				Msg("cycle complete")
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped")
			return ctx.Err()
		case <-time.After(w.opts.PollInterval):
		}
	}
}

// Load returns a copy of the worker's current ledger snapshot, which may be
// ahead of the persisted one after a failed save.
func (w *Worker) Load(ctx context.Context) ledger.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureLoaded(ctx)
	return w.snap.Clone()
}

func (w *Worker) ensureLoaded(ctx context.Context) {
	if w.snap == nil {
		w.snap = w.ledger.Load(ctx)
	}
}

// RunCycle lists upload storage, diffs it against the ledger and processes
// every unprocessed job one at a time.
func (w *Worker) RunCycle(ctx context.Context) CycleReport {
	var report CycleReport

	w.mu.Lock()
	w.ensureLoaded(ctx)
	if w.dirty {
		report.LedgerErr = w.saveLocked(ctx)
	}
	w.mu.Unlock()

	names, err := w.files.List(storage.UploadsNamespace, "")
	if err != nil {
		w.log.Error().Err(err).Msg("list uploads")
		return report
	}
	report.Scanned = len(names)

	keys := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := job.ParseKey(name); err != nil {
			w.log.Debug().Str("name", name).Msg("skipping unrecognised upload")
			report.Skipped++
			continue
		}
		keys = append(keys, name)
	}

	w.mu.Lock()
	pending := ledger.DiffUnprocessed(keys, w.snap)
	w.mu.Unlock()
	report.Pending = len(pending)

	for i, key := range pending {
		if ctx.Err() != nil {
			report.Abandoned += len(pending) - i
			break
		}
		switch err := w.process(ctx, key); {
		case err == nil:
			report.Processed++
			if saveErr := w.markProcessed(ctx, key); saveErr != nil {
				report.LedgerErr = saveErr
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			report.Abandoned++
		default:
			report.Failed++
		}
	}

	return report
}

// process explains one job and persists its record. The ledger is not
// touched here.
func (w *Worker) process(ctx context.Context, key string) error {
	k, _ := job.ParseKey(key)
	log := w.log.With().Str("job_id", k.ID).Str("key", key).Logger()
	start := time.Now()

	data, err := w.files.Get(storage.UploadsNamespace, key)
	if err != nil {
		log.Error().Err(err).Msg("read upload")
		return fmt.Errorf("read upload: %w", err)
	}

	texts, err := w.extractor.Extract(ctx, k.Filename, data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Msg("extract slides")
		return fmt.Errorf("extract slides: %w", err)
	}

	explanations := w.engine.FanOut(ctx, texts)
	if err := ctx.Err(); err != nil {
		log.Warn().Msg("cancelled before persisting, job stays pending")
		return err
	}

	failed := 0
	for _, e := range explanations {
		if explain.IsPlaceholder(e) {
			failed++
		}
	}

	record, err := json.Marshal(explanations)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := w.files.Put(storage.OutputsNamespace, storage.ResultName(key), record); err != nil {
		log.Error().Err(err).Msg("persist record")
		return fmt.Errorf("persist record: %w", err)
	}

	log.Info().
		Int("slides", len(explanations)).
		Int("placeholders", failed).
		Dur("elapsed", time.Since(start)).
		Msg("job processed")
	return nil
}

func (w *Worker) markProcessed(ctx context.Context, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.snap.MarkProcessed(key) {
		return nil
	}
	w.dirty = true
	return w.saveLocked(ctx)
}

func (w *Worker) saveLocked(ctx context.Context) error {
	err := w.ledger.Save(ctx, w.snap)
	if err == nil {
		w.dirty = false
		w.saveFailures = 0
		return nil
	}

	w.saveFailures++
	if w.saveFailures >= w.opts.EscalateAfter {
		w.log.Error().Err(err).
			Int("consecutive_failures", w.saveFailures).
			Bool("escalate", true).
			Msg("ledger save failing repeatedly")
	} else {
		w.log.Warn().Err(err).
			Int("consecutive_failures", w.saveFailures).
			Msg("ledger save failed, will retry next cycle")
	}
	return err
}
