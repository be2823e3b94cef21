package pipeline

import (
	"log/slog"

	"gazette-ingest/pkg/domain"
)

// Summary counts the outcomes of a run.
type Summary struct {
	Total    int
	Emitted  int
	Skipped  int
	Failed   int
	ByReason map[domain.FailureReason]int
	OCRUsed  int
}

// Summarize tallies outcomes.
func Summarize(outcomes []domain.Outcome) Summary {
	s := Summary{Total: len(outcomes), ByReason: make(map[domain.FailureReason]int)}
	for _, o := range outcomes {
		switch {
		case o.Emitted():
			s.Emitted++
			if o.Record != nil && o.Record.Extraction.Method == domain.MethodOCR {
				s.OCRUsed++
			}
		case o.State == domain.StateSkipped:
			s.Skipped++
		case o.State == domain.StateFailed:
			s.Failed++
			s.ByReason[o.Reason]++
		}
	}
	return s
}

// Log writes the summary at info level.
func (s Summary) Log(logger *slog.Logger) {
	attrs := []any{
		"total", s.Total,
		"processed", s.Emitted,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"ocr_used", s.OCRUsed,
	}
	for reason, n := range s.ByReason {
		attrs = append(attrs, string(reason), n)
	}
	logger.Info("run complete", attrs...)
}
