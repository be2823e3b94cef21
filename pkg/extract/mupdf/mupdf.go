// Package mupdf adapts MuPDF (through go-fitz) to the extract package: a text
// extraction method and the page rasterizer used by OCR.
package mupdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"

	"gazette-ingest/pkg/domain"
)

var errEmptyPDFContent = errors.New("pdf content is empty")

// Method extracts text with MuPDF's structured text device.
type Method struct{}

// NewMethod creates the MuPDF extraction method.
func NewMethod() *Method {
	return &Method{}
}

// Name returns domain.MethodMuPDF.
func (m *Method) Name() domain.Method { return domain.MethodMuPDF }

// Attempt extracts the text of every page.
func (m *Method) Attempt(ctx context.Context, pdf []byte) (string, error) {
	doc, err := open(pdf)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	var out strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", n+1, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n\n")
	}

	return strings.TrimSpace(out.String()), nil
}

// Rasterizer renders pages to RGBA images.
type Rasterizer struct{}

// NewRasterizer creates a MuPDF page rasterizer.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{}
}

// Rasterize renders up to maxPages pages at dpi.
func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte, dpi float64, maxPages int) ([]image.Image, error) {
	doc, err := open(pdf)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	count := doc.NumPage()
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}

	pages := make([]image.Image, 0, count)
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(n, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func open(pdf []byte) (*fitz.Document, error) {
	if len(pdf) == 0 {
		return nil, errEmptyPDFContent
	}
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return doc, nil
}
