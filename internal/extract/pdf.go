package extract

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// PDFExtractor treats each PDF page as a slide.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, filename string, data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	texts := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i+1, err)
		}
		if text := normalize(raw); text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}
