package domain

// EntryState is the position of a feed entry in the processing state machine.
type EntryState string

const (
	StateFetched    EntryState = "fetched"
	StateDownloaded EntryState = "downloaded"
	StateExtracted  EntryState = "extracted"
	StateDrafted    EntryState = "drafted"
	StateValidated  EntryState = "validated"
	StateEmitted    EntryState = "emitted"
	StateFailed     EntryState = "failed"
	StateSkipped    EntryState = "skipped"
)

// Terminal reports whether no further transition is possible from s.
func (s EntryState) Terminal() bool {
	return s == StateEmitted || s == StateFailed || s == StateSkipped
}

// FailureReason tags why an entry ended in StateFailed.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonDownloadFailed   FailureReason = "DownloadFailed"
	ReasonExtractionFailed FailureReason = "ExtractionFailed"
	ReasonDraftParse       FailureReason = "DraftParseError"
	ReasonValidationParse  FailureReason = "ValidationParseError"
	ReasonSaveFailed       FailureReason = "SaveFailed"
	ReasonCancelled        FailureReason = "Cancelled"
)

// Outcome is the terminal result of processing one feed entry.
type Outcome struct {
	Entry  FeedEntry
	State  EntryState
	Reason FailureReason
	Err    error
	Record *ValidatedRecord
}

// Emitted reports whether the entry produced a validated record.
func (o Outcome) Emitted() bool {
	return o.State == StateEmitted
}
