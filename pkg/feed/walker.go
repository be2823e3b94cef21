package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"

	"gazette-ingest/pkg/domain"
	"gazette-ingest/pkg/httpclient"
)

// Walker lists gazette entries from an RSS/Atom feed and downloads their documents.
// It keeps no cursor state: each ListEntries call re-fetches the feed.
type Walker struct {
	feedParser *gofeed.Parser
	client     *httpclient.HTTPClient
	logger     *slog.Logger
	maxBytes   int64
	followHTML bool
}

// Option configures a Walker.
type Option func(*Walker)

// WithMaxBytes caps the size of a downloaded document.
func WithMaxBytes(n int64) Option {
	return func(w *Walker) {
		if n > 0 {
			w.maxBytes = n
		}
	}
}

// WithLandingPages toggles following HTML landing pages to the PDF they link to.
func WithLandingPages(enabled bool) Option {
	return func(w *Walker) { w.followHTML = enabled }
}

// WithLogger sets the walker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// DefaultMaxBytes is the default cap on a single document download (100 MiB).
const DefaultMaxBytes int64 = 100 << 20

// NewWalker creates a walker that uses client for both feed and document requests.
func NewWalker(client *httpclient.HTTPClient, opts ...Option) *Walker {
	if client == nil {
		client = httpclient.NewClient(httpclient.DocumentClient)
	}

	parser := gofeed.NewParser()
	parser.Client = client.StdClient()
	if ua := client.UserAgent(); ua != "" {
		parser.UserAgent = ua
	}

	w := &Walker{
		feedParser: parser,
		client:     client,
		logger:     slog.Default(),
		maxBytes:   DefaultMaxBytes,
		followHTML: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ListEntries fetches and parses the feed, returning its items in feed order.
// Items without any usable link are dropped.
func (w *Walker) ListEntries(ctx context.Context, feedURL string) ([]domain.FeedEntry, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, fmt.Errorf("feed URL is empty")
	}

	w.logger.Info("fetching feed", "url", feedURL)
	feed, err := w.feedParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("feed is empty")
	}

	entries := make([]domain.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry, ok := entryFromItem(feedURL, item)
		if !ok {
			w.logger.Debug("skipping feed item without link", "title", item.Title)
			continue
		}
		entries = append(entries, entry)
	}

	w.logger.Info("extracted entries from feed", "url", feedURL, "items", len(feed.Items), "entries", len(entries))
	return entries, nil
}

// entryFromItem converts a gofeed item into a FeedEntry.
func entryFromItem(feedURL string, item *gofeed.Item) (domain.FeedEntry, bool) {
	if item == nil {
		return domain.FeedEntry{}, false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	link = resolveLink(feedURL, link)

	entry := domain.FeedEntry{
		GUID:        strings.TrimSpace(item.GUID),
		Title:       strings.TrimSpace(item.Title),
		Link:        link,
		Description: item.Description,
	}

	switch {
	case item.PublishedParsed != nil:
		entry.Published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		entry.Published = *item.UpdatedParsed
	}

	entry.PDFURL = pdfEnclosure(feedURL, item)
	if entry.PDFURL == "" && looksLikePDFPath(link) {
		entry.PDFURL = link
	}
	if entry.PDFURL == "" && entry.Description != "" {
		if found, err := FindPDFLink(link, []byte(entry.Description)); err == nil && looksLikePDFPath(found) {
			entry.PDFURL = found
		}
	}
	if entry.PDFURL == "" {
		entry.PDFURL = link
	}

	return entry, entry.PDFURL != ""
}

// pdfEnclosure returns the first enclosure that is a PDF.
func pdfEnclosure(feedURL string, item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || strings.TrimSpace(enc.URL) == "" {
			continue
		}
		if isPDFContentType(enc.Type) || looksLikePDFPath(enc.URL) {
			return resolveLink(feedURL, strings.TrimSpace(enc.URL))
		}
	}
	return ""
}

// resolveLink resolves ref against base; unparsable input is returned unchanged.
func resolveLink(base, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func looksLikePDFPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".pdf")
	}
	return strings.ToLower(path.Ext(u.Path)) == ".pdf"
}
