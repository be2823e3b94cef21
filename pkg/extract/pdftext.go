package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"gazette-ingest/pkg/domain"
)

var (
	errEmptyPDFContent = errors.New("pdf content is empty")
	errNilPDFDocument  = errors.New("pdf document is nil")
)

// LayoutMethod extracts text page by page, row by row, inserting spaces where
// glyph runs are visibly separated. It keeps table rows on one line.
type LayoutMethod struct{}

// NewLayoutMethod creates the row-ordered extraction method.
func NewLayoutMethod() *LayoutMethod {
	return &LayoutMethod{}
}

// Name returns domain.MethodLayout.
func (m *LayoutMethod) Name() domain.Method { return domain.MethodLayout }

// Attempt extracts row-ordered text from every page.
func (m *LayoutMethod) Attempt(ctx context.Context, data []byte) (string, error) {
	doc, err := openPDF(data)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", err
		}

		for _, row := range rows {
			line := joinRow(row.Content)
			if strings.TrimSpace(line) == "" {
				continue
			}
			out.WriteString(line)
			out.WriteByte('\n')
		}
		out.WriteString("\n")
	}

	return strings.TrimSpace(out.String()), nil
}

// joinRow concatenates the glyph runs of a row, adding a space where the gap
// between two runs is wider than a fifth of the font size.
func joinRow(texts []pdf.Text) string {
	var b strings.Builder
	for i, t := range texts {
		if i > 0 {
			prev := texts[i-1]
			gap := t.X - (prev.X + prev.W)
			if gap > prev.FontSize*0.2 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
	}
	return b.String()
}

// PlainMethod extracts the document's plain text stream in content order.
type PlainMethod struct{}

// NewPlainMethod creates the plain text-stream extraction method.
func NewPlainMethod() *PlainMethod {
	return &PlainMethod{}
}

// Name returns domain.MethodPlain.
func (m *PlainMethod) Name() domain.Method { return domain.MethodPlain }

// Attempt extracts plain text from the whole document.
func (m *PlainMethod) Attempt(ctx context.Context, data []byte) (string, error) {
	doc, err := openPDF(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}

	return strings.TrimSpace(buf.String()), nil
}

func openPDF(data []byte) (*pdf.Reader, error) {
	if len(data) == 0 {
		return nil, errEmptyPDFContent
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNilPDFDocument
	}
	return doc, nil
}
