package pipeline

import (
	"context"

	"gazette-ingest/pkg/domain"
	"gazette-ingest/pkg/feed"
)

// selectEntries builds the outcome slice in feed order and returns the
// indexes still to be processed. Entries rejected by a filter or already
// known to the tracker are marked skipped; entries past the MaxEntries cap
// are left out of the run.
func (p *Pipeline) selectEntries(ctx context.Context, entries []domain.FeedEntry) ([]domain.Outcome, []int) {
	outcomes := make([]domain.Outcome, 0, len(entries))
	var pending []int

	for _, entry := range entries {
		if p.maxEntries > 0 && len(pending) >= p.maxEntries {
			p.logger.Info("entry cap reached", "max_entries", p.maxEntries)
			break
		}

		outcome := domain.Outcome{Entry: entry, State: domain.StateFetched}
		if p.skip(ctx, entry) {
			outcome.State = domain.StateSkipped
			outcomes = append(outcomes, outcome)
			continue
		}

		pending = append(pending, len(outcomes))
		outcomes = append(outcomes, outcome)
	}

	return outcomes, pending
}

func (p *Pipeline) skip(ctx context.Context, entry domain.FeedEntry) bool {
	url := entry.DocumentURL()

	keep, err := feed.ShouldKeep(ctx, entry, p.filters...)
	if err != nil {
		// Filter errors keep the entry.
		p.logger.Warn("filter failed, keeping entry", "url", url, "error", err)
		keep = true
	}
	if !keep {
		p.logger.Info("entry filtered out", "url", url)
		return true
	}

	if p.tracker == nil {
		return false
	}
	done, err := p.tracker.IsProcessed(ctx, url)
	if err != nil {
		p.logger.Warn("processed lookup failed", "url", url, "error", err)
		return false
	}
	if done {
		p.logger.Info("already processed, skipping", "url", url)
	}
	return done
}
