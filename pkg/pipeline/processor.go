package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gazette-ingest/pkg/domain"
)

// ErrSaveFailed is matched by errors from the emit stage.
var ErrSaveFailed = errors.New("save failed")

// processEntry moves one entry through
// fetched → downloaded → extracted → drafted → validated → emitted.
// Any stage error ends the entry as failed with that stage's reason.
func (p *Pipeline) processEntry(ctx context.Context, entry domain.FeedEntry) domain.Outcome {
	out := domain.Outcome{Entry: entry, State: domain.StateFetched}
	url := entry.DocumentURL()
	logger := p.logger.With("url", url)

	if err := ctx.Err(); err != nil {
		return p.fail(out, domain.ReasonCancelled, err)
	}

	logger.Info("downloading document", "title", entry.Title)
	var doc *domain.RawDocument
	err := p.stage(ctx, p.timeouts.Download, func(ctx context.Context) error {
		var err error
		doc, err = p.downloader.Download(ctx, entry)
		return err
	})
	if err != nil {
		return p.fail(out, p.reason(ctx, domain.ReasonDownloadFailed), err)
	}
	out.State = domain.StateDownloaded
	logger.Info("document downloaded", "file", doc.FileName, "bytes", len(doc.Data))

	var canonical domain.CanonicalText
	err = p.stage(ctx, p.timeouts.Extract, func(ctx context.Context) error {
		var err error
		canonical, err = p.extractor.Extract(ctx, doc.Data)
		return err
	})
	if err != nil {
		return p.fail(out, p.reason(ctx, domain.ReasonExtractionFailed), err)
	}
	out.State = domain.StateExtracted
	logger.Info("text extracted", "method", canonical.Method, "score", fmt.Sprintf("%.1f", canonical.Score), "ocr", canonical.OCRAttempted)

	title := entry.Title
	if title == "" {
		title = doc.LandingTitle
	}
	in := domain.ReviewInput{
		Canonical: canonical,
		FileName:  doc.FileName,
		SourceURL: doc.SourceURL,
		Title:     title,
		Published: entry.Published,
		Themes:    p.themes,
	}

	var draft domain.DraftRecord
	err = p.stage(ctx, p.timeouts.Review, func(ctx context.Context) error {
		var err error
		draft, err = p.analyst.Draft(ctx, in)
		return err
	})
	if err != nil {
		return p.fail(out, p.reason(ctx, domain.ReasonDraftParse), err)
	}
	out.State = domain.StateDrafted

	var record *domain.ValidatedRecord
	err = p.stage(ctx, p.timeouts.Review, func(ctx context.Context) error {
		var err error
		record, err = p.analyst.Validate(ctx, in, draft)
		return err
	})
	if err != nil {
		return p.fail(out, p.reason(ctx, domain.ReasonValidationParse), err)
	}
	out.State = domain.StateValidated
	out.Record = record

	if p.saver != nil {
		err = p.stage(ctx, p.timeouts.Save, func(ctx context.Context) error {
			return p.saver.SaveRecord(ctx, record)
		})
		if err != nil {
			return p.fail(out, p.reason(ctx, domain.ReasonSaveFailed), fmt.Errorf("%w: %w", ErrSaveFailed, err))
		}
	}
	out.State = domain.StateEmitted

	if p.tracker != nil {
		if err := p.tracker.MarkProcessed(ctx, url); err != nil {
			logger.Warn("failed to mark processed", "error", err)
		}
	}

	logger.Info("record emitted", "corrected", record.Corrected, "notice", record.Record.NoticeName)
	return out
}

// stage runs fn under its own timeout.
func (p *Pipeline) stage(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// reason returns the stage reason unless the whole run was cancelled.
func (p *Pipeline) reason(ctx context.Context, stage domain.FailureReason) domain.FailureReason {
	if ctx.Err() != nil {
		return domain.ReasonCancelled
	}
	return stage
}

func (p *Pipeline) fail(out domain.Outcome, reason domain.FailureReason, err error) domain.Outcome {
	p.logger.Error("entry failed",
		"url", out.Entry.DocumentURL(),
		"stage", out.State,
		"reason", reason,
		"error", err,
	)
	out.State = domain.StateFailed
	out.Reason = reason
	out.Err = err
	out.Record = nil
	return out
}
