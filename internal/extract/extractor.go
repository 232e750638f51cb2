// Package extract turns slide-deck documents into per-slide text.
//
// Slides that carry no text are dropped, so the returned indices count text
// slides only.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrUnsupportedDocument = errors.New("unsupported document type")

type Kind string

const (
	KindPPTX Kind = "pptx"
	KindPDF  Kind = "pdf"
)

const (
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimePDF  = "application/pdf"
	mimeZip  = "application/zip"
)

// Extractor produces the ordered text of each non-empty slide.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]string, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, filename string, data []byte) ([]string, error)

func (f Func) Extract(ctx context.Context, filename string, data []byte) ([]string, error) {
	return f(ctx, filename, data)
}

// Detect sniffs the document type from its content. A generic zip is only
// accepted as pptx when the filename says so.
func Detect(filename string, data []byte) (Kind, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(mimePPTX):
		return KindPPTX, nil
	case mt.Is(mimePDF):
		return KindPDF, nil
	case mt.Is(mimeZip) && strings.EqualFold(filepath.Ext(filename), ".pptx"):
		return KindPPTX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, mt.String())
}

// Detecting dispatches to the extractor registered for the sniffed kind.
type Detecting struct {
	byKind map[Kind]Extractor
}

func NewDetecting() *Detecting {
	return &Detecting{byKind: map[Kind]Extractor{
		KindPPTX: PPTXExtractor{},
		KindPDF:  PDFExtractor{},
	}}
}

// With overrides the extractor used for kind.
func (d *Detecting) With(kind Kind, e Extractor) *Detecting {
	d.byKind[kind] = e
	return d
}

func (d *Detecting) Extract(ctx context.Context, filename string, data []byte) ([]string, error) {
	kind, err := Detect(filename, data)
	if err != nil {
		return nil, err
	}
	e, ok := d.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, kind)
	}
	return e.Extract(ctx, filename, data)
}

// normalize collapses all whitespace runs to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
