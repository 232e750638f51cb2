package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	nsPresentation = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsDrawing      = "http://schemas.openxmlformats.org/drawingml/2006/main"

	presentationPart = "ppt/presentation.xml"
	presentationRels = "ppt/_rels/presentation.xml.rels"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PPTXExtractor reads text from the text frames of each slide. Table cells
// and other graphic frames are not text frames and are skipped.
type PPTXExtractor struct{}

func (PPTXExtractor) Extract(ctx context.Context, filename string, data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	order, err := slideOrder(parts)
	if err != nil {
		return nil, fmt.Errorf("open pptx %s: %w", filename, err)
	}

	texts := make([]string, 0, len(order))
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, ok := parts[name]
		if !ok {
			continue
		}
		text, err := readSlideText(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder returns slide part names in presentation order. It follows the
// slide id list when the package has one and falls back to slide numbering.
func slideOrder(parts map[string]*zip.File) ([]string, error) {
	if order, ok := orderFromPresentation(parts); ok {
		return order, nil
	}

	type numbered struct {
		n    int
		name string
	}
	var slides []numbered
	for name := range parts {
		m := slidePartRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, numbered{n: n, name: name})
	}
	if len(slides) == 0 {
		return nil, errors.New("not a presentation package")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	order := make([]string, len(slides))
	for i, s := range slides {
		order[i] = s.name
	}
	return order, nil
}

func orderFromPresentation(parts map[string]*zip.File) ([]string, bool) {
	var pres presentationXML
	if err := decodePart(parts[presentationPart], &pres); err != nil {
		return nil, false
	}
	var rels relationshipsXML
	if err := decodePart(parts[presentationRels], &rels); err != nil {
		return nil, false
	}

	targets := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		targets[r.ID] = r.Target
	}

	order := make([]string, 0, len(pres.SlideIDs))
	for _, s := range pres.SlideIDs {
		target, ok := targets[s.RID]
		if !ok {
			continue
		}
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("ppt", target)
		}
		order = append(order, target)
	}
	return order, true
}

func decodePart(f *zip.File, v any) error {
	if f == nil {
		return errors.New("missing part")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// readSlideText concatenates the runs of every text body on the slide.
// Paragraphs, line breaks and shapes are separated by whitespace, which
// normalize then collapses.
func readSlideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		b         strings.Builder
		bodyDepth int
		inRun     bool
	)

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == nsPresentation && t.Name.Local == "txBody":
				bodyDepth++
			case bodyDepth > 0 && t.Name.Space == nsDrawing && t.Name.Local == "t":
				inRun = true
			case bodyDepth > 0 && t.Name.Space == nsDrawing && t.Name.Local == "br":
				b.WriteByte(' ')
			}
		case xml.EndElement:
			switch {
			case t.Name.Space == nsPresentation && t.Name.Local == "txBody":
				bodyDepth--
				b.WriteByte(' ')
			case t.Name.Space == nsDrawing && t.Name.Local == "t":
				inRun = false
			case bodyDepth > 0 && t.Name.Space == nsDrawing && t.Name.Local == "p":
				b.WriteByte(' ')
			}
		case xml.CharData:
			if inRun {
				b.Write(t)
			}
		}
	}

	return normalize(b.String()), nil
}
