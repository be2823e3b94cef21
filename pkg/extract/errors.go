package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gazette-ingest/pkg/domain"
)

// ErrExtractionFailed is matched by every terminal extraction failure.
var ErrExtractionFailed = errors.New("extraction failed")

// ExtractionFailedError is returned when no method, OCR included, produced usable text.
// Scores carries the per-method quality scores for diagnostics.
type ExtractionFailedError struct {
	Scores map[domain.Method]float64
	Errs   map[domain.Method]error
}

func (e *ExtractionFailedError) Error() string {
	if len(e.Scores) == 0 {
		return "extraction failed: no extraction methods ran"
	}

	methods := make([]string, 0, len(e.Scores))
	for m := range e.Scores {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)

	parts := make([]string, 0, len(methods))
	for _, m := range methods {
		part := fmt.Sprintf("%s=%.1f", m, e.Scores[domain.Method(m)])
		if err := e.Errs[domain.Method(m)]; err != nil {
			part += fmt.Sprintf(" (%v)", err)
		}
		parts = append(parts, part)
	}
	return "extraction failed: " + strings.Join(parts, ", ")
}

// Is makes errors.Is(err, ErrExtractionFailed) true.
func (e *ExtractionFailedError) Is(target error) bool {
	return target == ErrExtractionFailed
}

func newExtractionFailed(candidates []domain.ExtractionResult) *ExtractionFailedError {
	e := &ExtractionFailedError{
		Scores: make(map[domain.Method]float64, len(candidates)),
		Errs:   make(map[domain.Method]error),
	}
	for _, c := range candidates {
		e.Scores[c.Method] = c.Score
		if c.Err != nil {
			e.Errs[c.Method] = c.Err
		}
	}
	return e
}
