// Package explain obtains natural-language explanations for slide text.
package explain

import "context"

// Fetcher returns an explanation for a single slide's text.
type Fetcher interface {
	Explain(ctx context.Context, text string) (string, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, text string) (string, error)

func (f FetcherFunc) Explain(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
