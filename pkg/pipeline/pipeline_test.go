package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gazette-ingest/pkg/domain"
	"gazette-ingest/pkg/feed"
)

// mockSource is a mock implementation of EntrySource for testing
type mockSource struct {
	entries []domain.FeedEntry
	err     error
}

func (m *mockSource) ListEntries(ctx context.Context, feedURL string) ([]domain.FeedEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}

// mockDownloader returns the document URL as the PDF bytes. URLs in fail
// return an error; URLs in hang block until the stage context ends.
type mockDownloader struct {
	fail         map[string]error
	hang         map[string]bool
	delay        map[string]time.Duration
	landingTitle string

	mu        sync.Mutex
	callCount int
}

func (m *mockDownloader) Download(ctx context.Context, entry domain.FeedEntry) (*domain.RawDocument, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	url := entry.DocumentURL()
	if m.hang[url] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d := m.delay[url]; d > 0 {
		time.Sleep(d)
	}
	if err := m.fail[url]; err != nil {
		return nil, err
	}
	return &domain.RawDocument{
		SourceURL:    url,
		FileName:     "notice.pdf",
		Data:         []byte(url),
		LandingTitle: m.landingTitle,
	}, nil
}

// mockExtractor echoes the PDF bytes as text. Inputs in fail return an error.
type mockExtractor struct {
	fail map[string]error
}

func (m *mockExtractor) Extract(ctx context.Context, pdf []byte) (domain.CanonicalText, error) {
	if err := m.fail[string(pdf)]; err != nil {
		return domain.CanonicalText{}, err
	}
	return domain.CanonicalText{Text: string(pdf), Method: domain.MethodLayout, Score: 80}, nil
}

// mockAnalyst fails Draft or Validate for the source URLs it is given.
type mockAnalyst struct {
	draftErr    map[string]error
	validateErr map[string]error
}

func (m *mockAnalyst) Draft(ctx context.Context, in domain.ReviewInput) (domain.DraftRecord, error) {
	if err := m.draftErr[in.SourceURL]; err != nil {
		return domain.DraftRecord{}, err
	}
	return domain.DraftRecord{NoticeName: in.Canonical.Text, Jurisdiction: "Kuwait"}, nil
}

func (m *mockAnalyst) Validate(ctx context.Context, in domain.ReviewInput, draft domain.DraftRecord) (*domain.ValidatedRecord, error) {
	if err := m.validateErr[in.SourceURL]; err != nil {
		return nil, err
	}
	return &domain.ValidatedRecord{
		SourceURL:  in.SourceURL,
		EntryTitle: in.Title,
		Record:     draft,
		Validation: domain.ValidationReport{AllCorrect: true},
		Extraction: in.Canonical.Provenance(),
	}, nil
}

// mockSaver records saved records, failing for URLs in fail.
type mockSaver struct {
	fail map[string]error

	mu    sync.Mutex
	saved []*domain.ValidatedRecord
}

func (m *mockSaver) SaveRecord(ctx context.Context, record *domain.ValidatedRecord) error {
	if err := m.fail[record.SourceURL]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, record)
	return nil
}

func (m *mockSaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// mockTracker is an in-memory Tracker.
type mockTracker struct {
	mu     sync.Mutex
	done   map[string]bool
	marked []string
}

func newMockTracker(done ...string) *mockTracker {
	t := &mockTracker{done: make(map[string]bool)}
	for _, u := range done {
		t.done[u] = true
	}
	return t
}

func (m *mockTracker) IsProcessed(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[url], nil
}

func (m *mockTracker) MarkProcessed(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[url] = true
	m.marked = append(m.marked, url)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entries(urls ...string) []domain.FeedEntry {
	out := make([]domain.FeedEntry, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.FeedEntry{Title: "Notice " + u, PDFURL: u})
	}
	return out
}

func newTestPipeline(source EntrySource, dl Downloader, ex TextExtractor, an Analyst, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewPipeline(source, dl, ex, an, opts...)
}

func states(outcomes []domain.Outcome) []domain.EntryState {
	out := make([]domain.EntryState, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.State
	}
	return out
}

// Input: three entries, the second one's download fails.
// Expected Output: [Emitted, Failed(DownloadFailed), Emitted] and two saved records.
func TestPipeline_Run_IsolatesFailures(t *testing.T) {
	downloadErr := errors.New("503 from host")
	source := &mockSource{entries: entries("https://g.test/a.pdf", "https://g.test/b.pdf", "https://g.test/c.pdf")}
	dl := &mockDownloader{fail: map[string]error{"https://g.test/b.pdf": downloadErr}}
	saver := &mockSaver{}

	p := newTestPipeline(source, dl, &mockExtractor{}, &mockAnalyst{}, WithSaver(saver))
	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []domain.EntryState{domain.StateEmitted, domain.StateFailed, domain.StateEmitted}
	got := states(outcomes)
	if len(got) != len(want) {
		t.Fatalf("Expected %d outcomes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outcome %d: expected state %s, got %s", i, want[i], got[i])
		}
	}

	if outcomes[1].Reason != domain.ReasonDownloadFailed {
		t.Errorf("Expected reason %s, got %s", domain.ReasonDownloadFailed, outcomes[1].Reason)
	}
	if !errors.Is(outcomes[1].Err, downloadErr) {
		t.Errorf("Expected outcome error to wrap the download error, got: %v", outcomes[1].Err)
	}
	if outcomes[1].Record != nil {
		t.Error("Expected no record on a failed outcome")
	}
	if outcomes[0].Record == nil || outcomes[0].Record.Record.NoticeName != "https://g.test/a.pdf" {
		t.Errorf("Expected record for first entry, got %+v", outcomes[0].Record)
	}
	if saver.count() != 2 {
		t.Errorf("Expected 2 saved records, got %d", saver.count())
	}
}

func TestPipeline_Run_FailureReasons(t *testing.T) {
	const url = "https://g.test/x.pdf"
	cause := errors.New("boom")

	tests := []struct {
		name     string
		ex       *mockExtractor
		an       *mockAnalyst
		saver    *mockSaver
		reason   domain.FailureReason
		sentinel error
	}{
		{
			name:   "extraction",
			ex:     &mockExtractor{fail: map[string]error{url: cause}},
			an:     &mockAnalyst{},
			reason: domain.ReasonExtractionFailed,
		},
		{
			name:   "draft",
			ex:     &mockExtractor{},
			an:     &mockAnalyst{draftErr: map[string]error{url: cause}},
			reason: domain.ReasonDraftParse,
		},
		{
			name:   "validation",
			ex:     &mockExtractor{},
			an:     &mockAnalyst{validateErr: map[string]error{url: cause}},
			reason: domain.ReasonValidationParse,
		},
		{
			name:     "save",
			ex:       &mockExtractor{},
			an:       &mockAnalyst{},
			saver:    &mockSaver{fail: map[string]error{url: cause}},
			reason:   domain.ReasonSaveFailed,
			sentinel: ErrSaveFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.saver != nil {
				opts = append(opts, WithSaver(tt.saver))
			}
			tracker := newMockTracker()
			opts = append(opts, WithTracker(tracker))

			p := newTestPipeline(&mockSource{entries: entries(url)}, &mockDownloader{}, tt.ex, tt.an, opts...)
			outcomes, err := p.Run(context.Background(), "https://g.test/rss")
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(outcomes) != 1 {
				t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
			}

			o := outcomes[0]
			if o.State != domain.StateFailed || o.Reason != tt.reason {
				t.Errorf("Expected Failed(%s), got %s(%s)", tt.reason, o.State, o.Reason)
			}
			if !errors.Is(o.Err, cause) {
				t.Errorf("Expected error to wrap cause, got: %v", o.Err)
			}
			if tt.sentinel != nil && !errors.Is(o.Err, tt.sentinel) {
				t.Errorf("Expected error to match %v, got: %v", tt.sentinel, o.Err)
			}
			if len(tracker.marked) != 0 {
				t.Errorf("Expected failed entry not to be marked processed, got %v", tracker.marked)
			}
		})
	}
}

func TestPipeline_Run_SkipsProcessedAndFiltered(t *testing.T) {
	source := &mockSource{entries: entries(
		"https://g.test/done.pdf",
		"https://g.test/archive/old.pdf",
		"https://g.test/new.pdf",
	)}
	tracker := newMockTracker("https://g.test/done.pdf")
	dropArchive := feed.FilterFunc(func(ctx context.Context, e domain.FeedEntry) (bool, error) {
		return e.DocumentURL() != "https://g.test/archive/old.pdf", nil
	})
	dl := &mockDownloader{}

	p := newTestPipeline(source, dl, &mockExtractor{}, &mockAnalyst{},
		WithTracker(tracker),
		WithFilters(dropArchive),
	)
	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []domain.EntryState{domain.StateSkipped, domain.StateSkipped, domain.StateEmitted}
	for i, s := range states(outcomes) {
		if s != want[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, want[i], s)
		}
	}
	if dl.callCount != 1 {
		t.Errorf("Expected 1 download, got %d", dl.callCount)
	}
	if len(tracker.marked) != 1 || tracker.marked[0] != "https://g.test/new.pdf" {
		t.Errorf("Expected only the emitted entry to be marked, got %v", tracker.marked)
	}

	// A second run over the same feed skips everything.
	outcomes, err = p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for i, o := range outcomes {
		if o.State != domain.StateSkipped {
			t.Errorf("second run outcome %d: expected skipped, got %s", i, o.State)
		}
	}
}

func TestPipeline_Run_FilterErrorKeepsEntry(t *testing.T) {
	broken := feed.FilterFunc(func(ctx context.Context, e domain.FeedEntry) (bool, error) {
		return false, errors.New("lookup failed")
	})
	p := newTestPipeline(&mockSource{entries: entries("https://g.test/a.pdf")}, &mockDownloader{}, &mockExtractor{}, &mockAnalyst{},
		WithFilters(broken),
	)

	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcomes[0].State != domain.StateEmitted {
		t.Errorf("Expected entry to be processed, got %s", outcomes[0].State)
	}
}

func TestPipeline_Run_MaxEntries(t *testing.T) {
	source := &mockSource{entries: entries(
		"https://g.test/done.pdf",
		"https://g.test/1.pdf",
		"https://g.test/2.pdf",
		"https://g.test/3.pdf",
	)}
	dl := &mockDownloader{}

	p := newTestPipeline(source, dl, &mockExtractor{}, &mockAnalyst{},
		WithTracker(newMockTracker("https://g.test/done.pdf")),
		WithMaxEntries(2),
	)
	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Skipped entries do not count against the cap.
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}
	if dl.callCount != 2 {
		t.Errorf("Expected 2 downloads, got %d", dl.callCount)
	}
	if outcomes[2].Entry.PDFURL != "https://g.test/2.pdf" {
		t.Errorf("Expected last outcome for 2.pdf, got %s", outcomes[2].Entry.PDFURL)
	}
}

func TestPipeline_Run_WorkersPreserveOrder(t *testing.T) {
	var urls []string
	delay := make(map[string]time.Duration)
	for i := 0; i < 10; i++ {
		u := "https://g.test/" + string(rune('a'+i)) + ".pdf"
		urls = append(urls, u)
		// Earlier entries finish last.
		delay[u] = time.Duration(10-i) * 2 * time.Millisecond
	}
	saver := &mockSaver{}

	p := newTestPipeline(&mockSource{entries: entries(urls...)}, &mockDownloader{delay: delay}, &mockExtractor{}, &mockAnalyst{},
		WithSaver(saver),
		WithWorkers(4),
	)
	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(outcomes) != len(urls) {
		t.Fatalf("Expected %d outcomes, got %d", len(urls), len(outcomes))
	}
	for i, o := range outcomes {
		if o.State != domain.StateEmitted {
			t.Errorf("outcome %d: expected emitted, got %s", i, o.State)
			continue
		}
		if o.Record.SourceURL != urls[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, urls[i], o.Record.SourceURL)
		}
	}
	if saver.count() != len(urls) {
		t.Errorf("Expected %d saved records, got %d", len(urls), saver.count())
	}
}

func TestPipeline_Run_StageTimeout(t *testing.T) {
	const slow = "https://g.test/slow.pdf"
	source := &mockSource{entries: entries(slow, "https://g.test/fast.pdf")}
	dl := &mockDownloader{hang: map[string]bool{slow: true}}

	timeouts := DefaultStageTimeouts
	timeouts.Download = 20 * time.Millisecond

	p := newTestPipeline(source, dl, &mockExtractor{}, &mockAnalyst{}, WithStageTimeouts(timeouts))
	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if outcomes[0].Reason != domain.ReasonDownloadFailed {
		t.Errorf("Expected %s, got %s", domain.ReasonDownloadFailed, outcomes[0].Reason)
	}
	if !errors.Is(outcomes[0].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got: %v", outcomes[0].Err)
	}
	if outcomes[1].State != domain.StateEmitted {
		t.Errorf("Expected second entry emitted, got %s", outcomes[1].State)
	}
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dl := &mockDownloader{}
	p := newTestPipeline(&mockSource{entries: entries("https://g.test/a.pdf", "https://g.test/b.pdf")}, dl, &mockExtractor{}, &mockAnalyst{})
	outcomes, err := p.Run(ctx, "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for i, o := range outcomes {
		if o.State != domain.StateFailed || o.Reason != domain.ReasonCancelled {
			t.Errorf("outcome %d: expected Failed(Cancelled), got %s(%s)", i, o.State, o.Reason)
		}
	}
	if dl.callCount != 0 {
		t.Errorf("Expected no downloads after cancel, got %d", dl.callCount)
	}
}

func TestPipeline_Run_ListError(t *testing.T) {
	p := newTestPipeline(&mockSource{err: errors.New("feed unreachable")}, &mockDownloader{}, &mockExtractor{}, &mockAnalyst{})

	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err == nil {
		t.Fatal("Expected error for unreachable feed, got nil")
	}
	if outcomes != nil {
		t.Errorf("Expected no outcomes, got %d", len(outcomes))
	}
}

func TestPipeline_Run_MissingCollaborator(t *testing.T) {
	p := newTestPipeline(&mockSource{}, nil, &mockExtractor{}, &mockAnalyst{})
	if _, err := p.Run(context.Background(), "https://g.test/rss"); err == nil {
		t.Fatal("Expected error for missing downloader, got nil")
	}
}

func TestPipeline_Run_TitleFallsBackToLandingPage(t *testing.T) {
	source := &mockSource{entries: []domain.FeedEntry{{Link: "https://g.test/notice/1"}}}
	dl := &mockDownloader{landingTitle: "Ministerial Decision 45"}

	p := newTestPipeline(source, dl, &mockExtractor{}, &mockAnalyst{})
	outcomes, err := p.Run(context.Background(), "https://g.test/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcomes[0].Record == nil || outcomes[0].Record.EntryTitle != "Ministerial Decision 45" {
		t.Errorf("Expected landing page title, got %+v", outcomes[0].Record)
	}
}

func TestSummarize(t *testing.T) {
	outcomes := []domain.Outcome{
		{State: domain.StateEmitted, Record: &domain.ValidatedRecord{Extraction: domain.Provenance{Method: domain.MethodOCR}}},
		{State: domain.StateEmitted, Record: &domain.ValidatedRecord{Extraction: domain.Provenance{Method: domain.MethodLayout}}},
		{State: domain.StateSkipped},
		{State: domain.StateFailed, Reason: domain.ReasonDownloadFailed},
		{State: domain.StateFailed, Reason: domain.ReasonDownloadFailed},
		{State: domain.StateFailed, Reason: domain.ReasonDraftParse},
	}

	s := Summarize(outcomes)
	if s.Total != 6 || s.Emitted != 2 || s.Skipped != 1 || s.Failed != 3 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.OCRUsed != 1 {
		t.Errorf("Expected 1 OCR record, got %d", s.OCRUsed)
	}
	if s.ByReason[domain.ReasonDownloadFailed] != 2 || s.ByReason[domain.ReasonDraftParse] != 1 {
		t.Errorf("unexpected reason counts: %v", s.ByReason)
	}
}
