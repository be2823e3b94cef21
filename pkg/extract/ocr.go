package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"gazette-ingest/pkg/domain"
)

// OCR defaults.
const (
	DefaultOCRDPI       = 300
	DefaultOCRMaxPages  = 30
	DefaultOCRMaxPixels = 40_000_000
)

// DefaultOCRLanguages covers the English and Arabic notices the gazettes publish.
var DefaultOCRLanguages = []string{"eng", "ara"}

var errNoOCRText = errors.New("ocr produced no text")

// Rasterizer renders PDF pages to images.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, dpi float64, maxPages int) ([]image.Image, error)
}

// Recognizer turns an encoded page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte, languages []string) (string, error)
}

// OCRMethod rasterizes each page and runs optical character recognition on it.
type OCRMethod struct {
	rasterizer Rasterizer
	recognizer Recognizer
	dpi        float64
	maxPages   int
	maxPixels  int
	languages  []string
	logger     *slog.Logger
}

// OCROption configures an OCRMethod.
type OCROption func(*OCRMethod)

// WithDPI sets the rasterization resolution.
func WithDPI(dpi float64) OCROption {
	return func(m *OCRMethod) {
		if dpi > 0 {
			m.dpi = dpi
		}
	}
}

// WithMaxPages caps how many pages are recognized.
func WithMaxPages(n int) OCROption {
	return func(m *OCRMethod) {
		if n > 0 {
			m.maxPages = n
		}
	}
}

// WithMaxPixels downscales pages larger than n pixels before recognition.
func WithMaxPixels(n int) OCROption {
	return func(m *OCRMethod) {
		if n > 0 {
			m.maxPixels = n
		}
	}
}

// WithLanguages sets the recognition languages.
func WithLanguages(langs ...string) OCROption {
	return func(m *OCRMethod) {
		if len(langs) > 0 {
			m.languages = append([]string(nil), langs...)
		}
	}
}

// WithOCRLogger sets the OCR logger.
func WithOCRLogger(logger *slog.Logger) OCROption {
	return func(m *OCRMethod) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewOCRMethod creates an OCR method from a rasterizer and a recognizer.
func NewOCRMethod(rasterizer Rasterizer, recognizer Recognizer, opts ...OCROption) *OCRMethod {
	m := &OCRMethod{
		rasterizer: rasterizer,
		recognizer: recognizer,
		dpi:        DefaultOCRDPI,
		maxPages:   DefaultOCRMaxPages,
		maxPixels:  DefaultOCRMaxPixels,
		languages:  DefaultOCRLanguages,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns domain.MethodOCR.
func (m *OCRMethod) Name() domain.Method { return domain.MethodOCR }

// Attempt rasterizes and recognizes up to maxPages pages. Pages that fail
// recognition are skipped; the method fails only when no page yields text.
func (m *OCRMethod) Attempt(ctx context.Context, pdf []byte) (string, error) {
	if m.rasterizer == nil || m.recognizer == nil {
		return "", errors.New("ocr method is not configured")
	}

	pages, err := m.rasterizer.Rasterize(ctx, pdf, m.dpi, m.maxPages)
	if err != nil {
		return "", fmt.Errorf("rasterize: %w", err)
	}

	var out strings.Builder
	var lastErr error
	for i, img := range pages {
		if i >= m.maxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		encoded, err := encodePNG(downscale(img, m.maxPixels))
		if err != nil {
			lastErr = err
			continue
		}

		text, err := m.recognizer.Recognize(ctx, encoded, m.languages)
		if err != nil {
			lastErr = err
			m.logger.Warn("OCR failed on page", "page", i+1, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&out, "--- Page %d ---\n%s\n\n", i+1, text)
	}

	result := strings.TrimSpace(out.String())
	if result == "" {
		if lastErr != nil {
			return "", lastErr
		}
		return "", errNoOCRText
	}
	return result, nil
}

// downscale shrinks img proportionally so it has at most maxPixels pixels.
func downscale(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxPixels <= 0 || w*h <= maxPixels || w == 0 || h == 0 {
		return img
	}

	ratio := float64(maxPixels) / float64(w*h)
	scale := math.Sqrt(ratio)
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return buf.Bytes(), nil
}
