package domain

import "time"

// FeedEntry represents one gazette announcement item from an RSS/Atom feed.
type FeedEntry struct {
	// GUID is the feed-provided identifier, when available.
	GUID string `bson:"guid,omitempty" json:"guid,omitempty"`

	// Title is the announcement title as published in the feed.
	Title string `bson:"title" json:"title"`

	// Link is the item link (often an HTML landing page).
	Link string `bson:"link" json:"link"`

	// PDFURL is the document to download: the first PDF enclosure, otherwise Link.
	PDFURL string `bson:"pdf_url" json:"pdf_url"`

	// Description is the raw item description (may contain HTML).
	Description string `bson:"description,omitempty" json:"description,omitempty"`

	// Published is the publication timestamp; zero when the feed omits it.
	Published time.Time `bson:"published,omitempty" json:"published,omitempty"`
}

// DocumentURL returns the URL the entry's document should be fetched from.
func (e FeedEntry) DocumentURL() string {
	if e.PDFURL != "" {
		return e.PDFURL
	}
	return e.Link
}

// RawDocument is a downloaded PDF along with where it came from.
type RawDocument struct {
	SourceURL   string
	FileName    string
	ContentType string
	Data        []byte
	FetchedAt   time.Time

	// LandingTitle is the title of the HTML page the PDF was resolved from, if any.
	LandingTitle string
}
