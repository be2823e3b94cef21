// Package review runs the two-stage AI analysis of a gazette document: a
// junior analyst drafts a structured record, a senior analyst validates it and
// corrects it when needed.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gazette-ingest/pkg/domain"
)

var (
	// ErrDraftParse is matched by every junior-stage failure.
	ErrDraftParse = errors.New("draft parse error")
	// ErrValidationParse is matched by every senior-stage failure.
	ErrValidationParse = errors.New("validation parse error")

	errEmptyText = errors.New("canonical text is empty")
)

// StageError reports a failed review stage. Content holds the raw response
// when one was received.
type StageError struct {
	Stage   string
	Content string
	Err     error
	kind    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s stage: %v", e.kind, e.Stage, e.Err)
}

// Is matches ErrDraftParse or ErrValidationParse depending on the stage.
func (e *StageError) Is(target error) bool { return target == e.kind }

func (e *StageError) Unwrap() error { return e.Err }

func draftError(content string, err error) error {
	return &StageError{Stage: "junior", Content: content, Err: err, kind: ErrDraftParse}
}

func validationError(content string, err error) error {
	return &StageError{Stage: "senior", Content: content, Err: err, kind: ErrValidationParse}
}

// Reviewer runs the junior and senior analyst stages against a Completer.
type Reviewer struct {
	completer Completer
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithClock sets the time source for date_added and ValidatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Reviewer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator sets the generator for missing unique ids.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reviewer) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// WithLogger sets the reviewer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reviewer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Reviewer.
func New(completer Completer, opts ...Option) *Reviewer {
	r := &Reviewer{
		completer: completer,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review drafts and validates a record for in. Both stages must succeed.
func (r *Reviewer) Review(ctx context.Context, in domain.ReviewInput) (*domain.ValidatedRecord, error) {
	r.logger.Info("junior analyst: drafting record", "file", in.FileName)
	draft, err := r.Draft(ctx, in)
	if err != nil {
		return nil, err
	}

	r.logger.Info("senior analyst: validating record", "file", in.FileName)
	return r.Validate(ctx, in, draft)
}

// Draft runs the junior stage.
func (r *Reviewer) Draft(ctx context.Context, in domain.ReviewInput) (domain.DraftRecord, error) {
	if strings.TrimSpace(in.Canonical.Text) == "" {
		return domain.DraftRecord{}, draftError("", errEmptyText)
	}

	today := r.today()
	resp, err := r.completer.Complete(ctx, Request{
		System: draftSystemPrompt,
		Prompt: draftPrompt(in.Canonical.Text, in.FileName, today, in.Themes),
	})
	if err != nil {
		return domain.DraftRecord{}, draftError("", err)
	}
	r.logger.Info("token usage", "stage", "junior",
		"total", resp.Usage.TotalTokens, "input", resp.Usage.InputTokens, "output", resp.Usage.OutputTokens)

	content := cleanResponse(resp.Content)
	draft, err := decodeRecord([]byte(content))
	if err != nil {
		r.logger.Error("failed to parse junior response", "error", err)
		return domain.DraftRecord{}, draftError(resp.Content, err)
	}

	r.normalizer(in.FileName, today).apply(&draft)
	draft.TokenUsage = resp.Usage
	return draft, nil
}

// Validate runs the senior stage on draft. The draft is kept when the senior
// analyst confirms it, otherwise the corrected record replaces it.
func (r *Reviewer) Validate(ctx context.Context, in domain.ReviewInput, draft domain.DraftRecord) (*domain.ValidatedRecord, error) {
	if strings.TrimSpace(in.Canonical.Text) == "" {
		return nil, validationError("", errEmptyText)
	}

	draftJSON, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return nil, validationError("", fmt.Errorf("marshal draft: %w", err))
	}

	resp, err := r.completer.Complete(ctx, Request{
		System: validateSystemPrompt,
		Prompt: validationPrompt(in.Canonical.Text, string(draftJSON), in.Themes),
	})
	if err != nil {
		return nil, validationError("", err)
	}
	r.logger.Info("token usage", "stage", "senior",
		"total", resp.Usage.TotalTokens, "input", resp.Usage.InputTokens, "output", resp.Usage.OutputTokens)

	v, err := decodeVerdict([]byte(cleanResponse(resp.Content)))
	if err != nil {
		r.logger.Error("failed to parse senior response", "error", err)
		return nil, validationError(resp.Content, err)
	}

	final := draft
	corrected := false
	if !*v.AllCorrect {
		final, err = decodeRecord([]byte(cleanResponse(string(v.CorrectedRecord))))
		if err != nil {
			return nil, validationError(resp.Content, fmt.Errorf("corrected_record: %w", err))
		}
		if strings.TrimSpace(final.UniqueID) == "" {
			final.UniqueID = draft.UniqueID
		}
		if strings.TrimSpace(final.DateAdded) == "" {
			final.DateAdded = draft.DateAdded
		}
		r.normalizer(in.FileName, draft.DateAdded).apply(&final)
		corrected = true
		r.logger.Info("senior analyst corrected record", "issues", len(v.IssuesFound))
	} else {
		r.logger.Info("senior analyst confirmed record")
	}
	final.TokenUsage = draft.TokenUsage.Add(resp.Usage)

	return &domain.ValidatedRecord{
		SourceURL:  in.SourceURL,
		EntryTitle: in.Title,
		Published:  in.Published,
		Record:     final,
		Validation: domain.ValidationReport{
			AllCorrect:       *v.AllCorrect,
			FieldValidations: v.FieldValidations,
			IssuesFound:      []string(v.IssuesFound),
		},
		Corrected:   corrected,
		Extraction:  in.Canonical.Provenance(),
		ValidatedAt: r.now().UTC(),
	}, nil
}

func (r *Reviewer) today() string {
	return r.now().Format("2006-01-02")
}

func (r *Reviewer) normalizer(fileName, today string) normalizer {
	return normalizer{fileName: fileName, today: today, newID: r.newID}
}
