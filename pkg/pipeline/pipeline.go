package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gazette-ingest/pkg/domain"
	"gazette-ingest/pkg/feed"
)

// EntrySource lists the entries of a feed. Each call re-fetches the feed.
type EntrySource interface {
	ListEntries(ctx context.Context, feedURL string) ([]domain.FeedEntry, error)
}

// Downloader fetches the PDF behind a feed entry.
type Downloader interface {
	Download(ctx context.Context, entry domain.FeedEntry) (*domain.RawDocument, error)
}

// TextExtractor chooses the canonical text of a PDF.
type TextExtractor interface {
	Extract(ctx context.Context, pdf []byte) (domain.CanonicalText, error)
}

// Analyst runs the junior (Draft) and senior (Validate) review stages.
type Analyst interface {
	Draft(ctx context.Context, in domain.ReviewInput) (domain.DraftRecord, error)
	Validate(ctx context.Context, in domain.ReviewInput, draft domain.DraftRecord) (*domain.ValidatedRecord, error)
}

// RecordSaver persists a validated record.
type RecordSaver interface {
	SaveRecord(ctx context.Context, record *domain.ValidatedRecord) error
}

// Tracker remembers which document URLs were already emitted.
type Tracker interface {
	IsProcessed(ctx context.Context, url string) (bool, error)
	MarkProcessed(ctx context.Context, url string) error
}

// StageTimeouts bounds each per-entry stage. Zero means no timeout.
type StageTimeouts struct {
	Download time.Duration
	Extract  time.Duration
	Review   time.Duration
	Save     time.Duration
}

// DefaultStageTimeouts are used unless overridden.
var DefaultStageTimeouts = StageTimeouts{
	Download: 2 * time.Minute,
	Extract:  10 * time.Minute,
	Review:   5 * time.Minute,
	Save:     30 * time.Second,
}

// Pipeline drives every feed entry through download, extraction, review and
// emission. A failure affects only its own entry.
type Pipeline struct {
	source     EntrySource
	downloader Downloader
	extractor  TextExtractor
	analyst    Analyst
	saver      RecordSaver
	tracker    Tracker
	filters    []feed.Filter
	themes     []string
	workers    int
	maxEntries int
	timeouts   StageTimeouts
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSaver sets where validated records are emitted. Several savers can be
// combined with NewMultiSaver.
func WithSaver(saver RecordSaver) Option {
	return func(p *Pipeline) { p.saver = saver }
}

// WithTracker skips entries already processed and marks emitted ones.
func WithTracker(tracker Tracker) Option {
	return func(p *Pipeline) { p.tracker = tracker }
}

// WithFilters adds entry filters; rejected entries end as skipped.
func WithFilters(filters ...feed.Filter) Option {
	return func(p *Pipeline) { p.filters = append(p.filters, filters...) }
}

// WithThemes sets the themes the analysts may assign.
func WithThemes(themes []string) Option {
	return func(p *Pipeline) { p.themes = append([]string(nil), themes...) }
}

// WithWorkers sets how many entries are processed concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxEntries caps how many entries are processed per run. 0 means all.
func WithMaxEntries(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxEntries = n
		}
	}
}

// WithStageTimeouts sets per-stage timeouts.
func WithStageTimeouts(t StageTimeouts) Option {
	return func(p *Pipeline) { p.timeouts = t }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline wires the pipeline collaborators.
func NewPipeline(source EntrySource, downloader Downloader, extractor TextExtractor, analyst Analyst, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:     source,
		downloader: downloader,
		extractor:  extractor,
		analyst:    analyst,
		workers:    1,
		timeouts:   DefaultStageTimeouts,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every entry of the feed and returns one outcome per entry in
// feed order. It returns an error only when the feed cannot be listed.
func (p *Pipeline) Run(ctx context.Context, feedURL string) ([]domain.Outcome, error) {
	if p.source == nil || p.downloader == nil || p.extractor == nil || p.analyst == nil {
		return nil, fmt.Errorf("pipeline is missing a collaborator")
	}

	p.logger.Info("listing feed", "url", feedURL)
	entries, err := p.source.ListEntries(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("list feed %s: %w", feedURL, err)
	}
	p.logger.Info("feed listed", "entries", len(entries))

	outcomes, pending := p.selectEntries(ctx, entries)
	p.logger.Info("processing entries", "selected", len(pending), "skipped", len(outcomes)-len(pending), "workers", p.workers)

	p.processAll(ctx, outcomes, pending)
	return outcomes, nil
}

// processAll fills outcomes[i] for every pending index, sequentially or with
// a bounded pool of workers.
func (p *Pipeline) processAll(ctx context.Context, outcomes []domain.Outcome, pending []int) {
	if p.workers <= 1 || len(pending) <= 1 {
		for _, i := range pending {
			outcomes[i] = p.processEntry(ctx, outcomes[i].Entry)
		}
		return
	}

	jobChan := make(chan int, len(pending))
	for _, i := range pending {
		jobChan <- i
	}
	close(jobChan)

	workers := p.workers
	if workers > len(pending) {
		workers = len(pending)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			// Each index is owned by exactly one worker.
			for i := range jobChan {
				p.logger.Debug("worker picked entry", "worker", workerID, "index", i)
				outcomes[i] = p.processEntry(ctx, outcomes[i].Entry)
			}
		}(w)
	}
	wg.Wait()
}
