package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"gazette-ingest/pkg/domain"
)

// Defaults for the extractor.
const (
	DefaultQualityThreshold = 70.0
	DefaultMinChars         = 50
)

// Extractor runs several text extraction methods over a PDF, keeps the best
// scoring result and falls back to OCR when that result is below a threshold.
type Extractor struct {
	methods   []Method
	ocr       Method
	threshold float64
	margin    float64
	minChars  int
	scorer    func(string) float64
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMethods sets the extraction methods in priority order. Ties in score go
// to the method listed first.
func WithMethods(methods ...Method) Option {
	return func(e *Extractor) { e.methods = append([]Method(nil), methods...) }
}

// WithOCR sets the fallback OCR method. Nil disables escalation.
func WithOCR(ocr Method) Option {
	return func(e *Extractor) { e.ocr = ocr }
}

// WithQualityThreshold sets the score below which OCR is attempted.
func WithQualityThreshold(threshold float64) Option {
	return func(e *Extractor) { e.threshold = threshold }
}

// WithOCRMargin requires OCR to beat the selected score by more than margin.
func WithOCRMargin(margin float64) Option {
	return func(e *Extractor) {
		if margin >= 0 {
			e.margin = margin
		}
	}
}

// WithMinChars sets the minimum non-blank length for a result to be scored.
func WithMinChars(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minChars = n
		}
	}
}

// WithScorer replaces the quality heuristic.
func WithScorer(scorer func(string) float64) Option {
	return func(e *Extractor) {
		if scorer != nil {
			e.scorer = scorer
		}
	}
}

// WithLogger sets the extractor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an extractor. Without WithMethods it uses the pure-Go methods
// (layout, plain); callers add MuPDF and OCR through options.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		methods:   []Method{NewLayoutMethod(), NewPlainMethod()},
		threshold: DefaultQualityThreshold,
		minChars:  DefaultMinChars,
		scorer:    Score,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract chooses the canonical text for pdf.
//
// Every method runs independently; a failing or panicking method scores zero.
// The highest score wins, earlier methods win ties. If the winner scores below
// the threshold (or nothing scored), OCR runs and replaces the winner only when
// it scores strictly higher (plus the configured margin).
func (e *Extractor) Extract(ctx context.Context, pdf []byte) (domain.CanonicalText, error) {
	candidates := make([]domain.ExtractionResult, 0, len(e.methods)+1)
	best := -1

	for _, m := range e.methods {
		if err := ctx.Err(); err != nil {
			return domain.CanonicalText{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}

		res := e.attempt(ctx, m, pdf)
		candidates = append(candidates, res)
		if res.Score <= 0 {
			continue
		}
		if best < 0 || res.Score > candidates[best].Score {
			best = len(candidates) - 1
		}
	}

	var canonical domain.CanonicalText
	bestScore := 0.0
	if best >= 0 {
		chosen := candidates[best]
		bestScore = chosen.Score
		canonical = domain.CanonicalText{Text: chosen.Text, Method: chosen.Method, Score: chosen.Score}
		e.logger.Info("best extraction method", "method", chosen.Method, "score", fmt.Sprintf("%.1f", chosen.Score))
	}

	if e.ocr != nil && (best < 0 || bestScore < e.threshold) {
		e.logger.Info("quality below threshold, trying OCR", "score", fmt.Sprintf("%.1f", bestScore), "threshold", e.threshold)
		ocrRes := e.attempt(ctx, e.ocr, pdf)
		candidates = append(candidates, ocrRes)
		canonical.OCRAttempted = true

		beats := ocrRes.Score > 0 && (best < 0 || ocrRes.Score > bestScore+e.margin)
		if beats {
			e.logger.Info("OCR provided better quality, using OCR result", "score", fmt.Sprintf("%.1f", ocrRes.Score))
			canonical.Text = ocrRes.Text
			canonical.Method = ocrRes.Method
			canonical.Score = ocrRes.Score
			best = len(candidates) - 1
		}
	}

	if best < 0 || strings.TrimSpace(canonical.Text) == "" {
		return domain.CanonicalText{}, newExtractionFailed(candidates)
	}

	canonical.Candidates = candidates
	return canonical, nil
}

// attempt runs one method, converting errors and panics into a zero score.
func (e *Extractor) attempt(ctx context.Context, m Method, pdf []byte) (res domain.ExtractionResult) {
	res.Method = m.Name()

	defer func() {
		if r := recover(); r != nil {
			res = domain.ExtractionResult{Method: m.Name(), Err: fmt.Errorf("%s panicked: %v", m.Name(), r)}
			e.logger.Error("extraction method panicked", "method", m.Name(), "panic", r)
		}
	}()

	if len(pdf) == 0 {
		res.Err = errEmptyPDFContent
		return res
	}

	text, err := m.Attempt(ctx, pdf)
	if err != nil {
		res.Err = err
		if !errors.Is(err, context.Canceled) {
			e.logger.Error("extraction method failed", "method", m.Name(), "error", err)
		}
		return res
	}

	text = strings.TrimSpace(text)
	res.Text = text
	res.Chars = utf8.RuneCountInString(text)

	if nonBlankRunes(text) < e.minChars {
		e.logger.Info("extraction too short", "method", m.Name(), "chars", res.Chars)
		return res
	}

	res.Score = e.scorer(text)
	e.logger.Info("extraction scored", "method", m.Name(), "chars", res.Chars, "quality", fmt.Sprintf("%.1f", res.Score))
	return res
}

func nonBlankRunes(s string) int {
	return utf8.RuneCountInString(s) - countSpace(s)
}
