// Package runner sequences a scrape run: month resolution output in, one
// extraction-merge-persist cycle per month, consolidated report out.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ffcalendar/calendar"
	"ffcalendar/common/config"
	"ffcalendar/common/models"
	"ffcalendar/common/retry"
	"ffcalendar/dataset"
	"ffcalendar/driver"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// SessionFunc opens a fresh browsing session for one month. The returned
// closer tears the session down; a new session per month keeps a
// misbehaving page from poisoning the months after it.
type SessionFunc func(ctx context.Context) (driver.PageDriver, func(), error)

// Request is one scrape run.
type Request struct {
	Months []calendar.MonthToken
	Mode   dataset.Mode
}

// MonthResult is the outcome of a single month within a run.
type MonthResult struct {
	Token    calendar.MonthToken
	Records  int
	Summary  dataset.ChangeSummary
	Degraded bool
	Err      error
}

// Report is the consolidated outcome of a run. A month's failure is
// recorded here rather than aborting the run.
type Report struct {
	RunID    string
	Months   []MonthResult
	Retry    retry.Stats
	Started  time.Time
	Finished time.Time
}

// Failed reports whether any month failed after retry exhaustion.
func (r *Report) Failed() bool {
	for _, m := range r.Months {
		if m.Err != nil {
			return true
		}
	}
	return false
}

// Log emits the end-of-run summary.
func (r *Report) Log() {
	succeeded, failed := 0, 0
	for _, m := range r.Months {
		if m.Err != nil {
			failed++
			log.Error().
				Str("runID", r.RunID).
				Str("month", m.Token.String()).
				Err(m.Err).
				Msg("Month failed")
			continue
		}
		succeeded++
		log.Info().
			Str("runID", r.RunID).
			Str("month", m.Token.String()).
			Int("records", m.Records).
			Int("inserted", m.Summary.Inserted).
			Int("updated", m.Summary.Updated).
			Int("unchanged", m.Summary.Unchanged).
			Bool("degraded", m.Degraded).
			Msg("Month completed")
	}

	log.Info().
		Str("runID", r.RunID).
		Int("monthsSucceeded", succeeded).
		Int("monthsFailed", failed).
		Int64("attempts", r.Retry.Attempts).
		Int64("firstTrySuccess", r.Retry.FirstTrySuccess).
		Int64("retriedSuccess", r.Retry.RetriedSuccess).
		Int64("exhausted", r.Retry.Exhausted).
		Str("successRate", fmt.Sprintf("%.1f%%", r.Retry.SuccessRate())).
		Dur("elapsed", r.Finished.Sub(r.Started)).
		Msg("Run completed")
}

// Orchestrator runs months strictly sequentially: the browsing session is
// stateful and cannot be shared across concurrent navigations.
type Orchestrator struct {
	session SessionFunc
	store   dataset.Store
	rules   config.ScrapeRules
	policy  retry.Policy
	pause   time.Duration
}

// New builds an orchestrator. pause is the polite delay between months.
func New(session SessionFunc, store dataset.Store, rules config.ScrapeRules, policy retry.Policy, pause time.Duration) *Orchestrator {
	return &Orchestrator{
		session: session,
		store:   store,
		rules:   rules,
		policy:  policy,
		pause:   pause,
	}
}

// Run processes every requested month and always returns a report; only
// configuration errors and context cancellation abort the run itself.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	if err := o.policy.Validate(); err != nil {
		return nil, err
	}
	if err := o.rules.Validate(); err != nil {
		return nil, err
	}
	if len(req.Months) == 0 {
		return nil, fmt.Errorf("%w: no months to scrape", calendar.ErrEmptyRange)
	}

	report := &Report{
		RunID:   uuid.New().String(),
		Started: time.Now(),
	}

	log.Info().
		Str("runID", report.RunID).
		Int("months", len(req.Months)).
		Str("mode", string(req.Mode)).
		Msg("Starting run")

	for i, tok := range req.Months {
		result := o.processMonth(ctx, tok, req.Mode, &report.Retry)
		report.Months = append(report.Months, result)

		if ctx.Err() != nil {
			report.Finished = time.Now()
			return report, ctx.Err()
		}
		if i < len(req.Months)-1 && o.pause > 0 {
			select {
			case <-ctx.Done():
				report.Finished = time.Now()
				return report, ctx.Err()
			case <-time.After(o.pause):
			}
		}
	}

	report.Finished = time.Now()
	report.Log()
	return report, nil
}

func (o *Orchestrator) processMonth(ctx context.Context, tok calendar.MonthToken, mode dataset.Mode, stats *retry.Stats) MonthResult {
	result := MonthResult{Token: tok}

	d, closeSession, err := o.session(ctx)
	if err != nil {
		result.Err = &calendar.MonthScrapeError{Token: tok, Err: err}
		return result
	}
	defer closeSession()

	extractor := calendar.NewExtractor(d, o.rules, o.policy, stats)

	// The whole month attempt is retried on top of the extractor's own
	// per-step retries; a fresh attempt re-navigates from scratch.
	scrape, err := retry.Do(ctx, "scrape "+tok.String(), o.policy, stats, func() (calendar.ScrapeResult, error) {
		return extractor.ScrapeMonth(ctx, tok)
	})
	if err != nil {
		result.Err = &calendar.MonthScrapeError{Token: tok, Err: err}
		return result
	}
	result.Degraded = scrape.Degraded

	existing, err := o.store.Load(ctx, tok)
	if err != nil {
		if !errors.Is(err, dataset.ErrCorruptDataset) {
			result.Err = &calendar.MonthScrapeError{Token: tok, Err: err}
			return result
		}
		// Recoverable: start the merge from an empty dataset.
		log.Warn().
			Str("month", tok.String()).
			Err(err).
			Msg("Existing dataset is corrupt, falling back to empty")
		existing = mo.None[models.MonthDataset]()
	}

	merged, summary := dataset.Merge(scrape.Dataset, existing, mode)
	if err := o.store.Save(ctx, tok, merged); err != nil {
		result.Err = &calendar.MonthScrapeError{Token: tok, Err: err}
		return result
	}

	result.Records = len(merged.Events)
	result.Summary = summary
	return result
}
