package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gazette-ingest/pkg/domain"
)

// Filter decides whether a feed entry should be processed.
type Filter interface {
	ShouldKeep(ctx context.Context, entry domain.FeedEntry) (bool, error)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ctx context.Context, entry domain.FeedEntry) (bool, error)

// ShouldKeep calls f.
func (f FilterFunc) ShouldKeep(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	return f(ctx, entry)
}

// ShouldKeep reports whether entry passes every filter.
func ShouldKeep(ctx context.Context, entry domain.FeedEntry, filters ...Filter) (bool, error) {
	for _, f := range filters {
		keep, err := f.ShouldKeep(ctx, entry)
		if err != nil {
			return false, fmt.Errorf("filter error for %s: %w", entry.DocumentURL(), err)
		}
		if !keep {
			return false, nil
		}
	}
	return true, nil
}

// ProcessedFilter drops entries whose document URL is in a known set.
type ProcessedFilter struct {
	processed map[string]bool
}

// NewProcessedFilter creates a filter over an already-processed URL set.
func NewProcessedFilter(processed map[string]bool) *ProcessedFilter {
	return &ProcessedFilter{processed: processed}
}

// ShouldKeep returns false if the entry was already processed.
func (f *ProcessedFilter) ShouldKeep(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	return !f.processed[entry.DocumentURL()], nil
}

// ContainsPathFilter keeps entries whose document URL contains a substring.
type ContainsPathFilter struct {
	pathSegment string
}

// NewContainsPathFilter creates a new path filter.
func NewContainsPathFilter(pathSegment string) *ContainsPathFilter {
	return &ContainsPathFilter{pathSegment: pathSegment}
}

// ShouldKeep returns true if the URL contains the configured segment.
func (f *ContainsPathFilter) ShouldKeep(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	return strings.Contains(entry.DocumentURL(), f.pathSegment), nil
}

// SinceFilter keeps entries published at or after a cutoff. Undated entries are kept.
type SinceFilter struct {
	since time.Time
}

// NewSinceFilter creates a publication-date cutoff filter.
func NewSinceFilter(since time.Time) *SinceFilter {
	return &SinceFilter{since: since}
}

// ShouldKeep returns false for entries published before the cutoff.
func (f *SinceFilter) ShouldKeep(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	if entry.Published.IsZero() {
		return true, nil
	}
	return !entry.Published.Before(f.since), nil
}

// PDFLinkFilter keeps entries whose document URL points at a PDF file.
// Use it for feeds that mix documents with plain web pages.
type PDFLinkFilter struct{}

// NewPDFLinkFilter creates a PDF link filter.
func NewPDFLinkFilter() *PDFLinkFilter {
	return &PDFLinkFilter{}
}

// ShouldKeep returns true when the entry has a PDF enclosure or a .pdf link.
func (f *PDFLinkFilter) ShouldKeep(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	if entry.PDFURL != "" && entry.PDFURL != entry.Link {
		return true, nil
	}
	return looksLikePDFPath(entry.DocumentURL()), nil
}
