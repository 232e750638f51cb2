package explain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const placeholderPrefix = "explanation failed: "

// SlideExplanation is one entry of a persisted result record.
type SlideExplanation struct {
	Index       int    `json:"index"`
	Explanation string `json:"explanation"`

	// Failed marks a placeholder built by FanOut. It is not persisted.
	Failed bool `json:"-"`
}

// Placeholder builds the explanation stored for a slide whose fetch failed.
func Placeholder(reason error) SlideExplanation {
	return SlideExplanation{Explanation: placeholderPrefix + reason.Error(), Failed: true}
}

// IsPlaceholder reports whether e stands in for a failed fetch. Only records
// produced in this process carry the flag; the text of a fetched answer never
// makes it a placeholder.
func IsPlaceholder(e SlideExplanation) bool {
	return e.Failed
}

type EngineOptions struct {
	// FetchTimeout bounds each fetch call. Zero disables the bound.
	FetchTimeout time.Duration
	// Limit caps concurrent fetches. Zero means one goroutine per slide.
	Limit int
}

// Engine explains every slide of a deck concurrently.
type Engine struct {
	fetcher Fetcher
	opts    EngineOptions
	log     zerolog.Logger
}

func NewEngine(fetcher Fetcher, opts EngineOptions, log zerolog.Logger) *Engine {
	return &Engine{fetcher: fetcher, opts: opts, log: log}
}

// FanOut returns exactly one record per text, in input order. A failed,
// timed out or panicking fetch yields a placeholder at its own index and
// never affects the others. FanOut returns only after every call finished.
func (e *Engine) FanOut(ctx context.Context, texts []string) []SlideExplanation {
	out := make([]SlideExplanation, len(texts))

	var g errgroup.Group
	if e.opts.Limit > 0 {
		g.SetLimit(e.opts.Limit)
	}

	for i, text := range texts {
		g.Go(func() error {
			explanation, err := e.fetchOne(ctx, text)
			if err != nil {
				e.log.Warn().Err(err).Int("index", i).Msg("slide explanation failed")
				out[i] = Placeholder(err)
			} else {
				out[i] = SlideExplanation{Explanation: explanation}
			}
			out[i].Index = i
			return nil
		})
	}
	_ = g.Wait()

	return out
}

type fetchResult struct {
	text string
	err  error
}

func (e *Engine) fetchOne(ctx context.Context, text string) (string, error) {
	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		s, err := e.fetcher.Explain(ctx, text)
		done <- fetchResult{text: s, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		if e.opts.FetchTimeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s", e.opts.FetchTimeout)
		}
		return "", ctx.Err()
	}
}
