package domain

import "time"

// ReviewInput is everything the analysts see for one document.
type ReviewInput struct {
	Canonical CanonicalText
	FileName  string
	SourceURL string
	Title     string
	Published time.Time

	// Themes restricts the themes the analysts may assign.
	Themes []string
}
