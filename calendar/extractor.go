// Package calendar drives extraction of economic calendar months: resolving
// which months to scrape, walking the rendered table, and converting rows
// into typed event records.
package calendar

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ffcalendar/common/config"
	"ffcalendar/common/models"
	"ffcalendar/common/retry"
	"ffcalendar/driver"

	"github.com/rs/zerolog/log"
)

// MonthScrapeError carries the month whose extraction exhausted every
// retry, plus the underlying cause.
type MonthScrapeError struct {
	Token MonthToken
	Err   error
}

func (e *MonthScrapeError) Error() string {
	return fmt.Sprintf("scraping %s: %v", e.Token, e.Err)
}

func (e *MonthScrapeError) Unwrap() error { return e.Err }

// ScrapeResult is one month's extraction output. Degraded marks a partial
// dataset: the scroll loop hit its iteration cap before the page settled.
type ScrapeResult struct {
	Dataset  models.MonthDataset
	Degraded bool
}

// Extractor fully loads a paginated calendar table through a PageDriver
// and converts its rows into a MonthDataset.
type Extractor struct {
	driver driver.PageDriver
	rules  config.ScrapeRules
	policy retry.Policy
	stats  *retry.Stats
}

// NewExtractor wires an extractor to a browsing session. stats is shared
// with the caller so retries across months aggregate into one run summary.
func NewExtractor(d driver.PageDriver, rules config.ScrapeRules, policy retry.Policy, stats *retry.Stats) *Extractor {
	return &Extractor{driver: d, rules: rules, policy: policy, stats: stats}
}

// CalendarURL is the month view address, e.g. ".../calendar?month=jan.2007".
func (e *Extractor) CalendarURL(tok MonthToken) string {
	return fmt.Sprintf("%s?month=%s", e.rules.BaseURL, tok.URLParam())
}

func (e *Extractor) detailURL(tok MonthToken, siteID string) string {
	return fmt.Sprintf("%s?month=%s#detail=%s", e.rules.BaseURL, tok.URLParam(), siteID)
}

// ScrapeMonth loads the month view, scrolls until the table stops growing
// and extracts every qualifying row. Page loading and row extraction are
// individually retried; rendering on the remote lags and usually resolves
// itself.
func (e *Extractor) ScrapeMonth(ctx context.Context, tok MonthToken) (ScrapeResult, error) {
	url := e.CalendarURL(tok)
	log.Info().Str("url", url).Str("month", tok.String()).Msg("Loading calendar view")

	if err := retry.Run(ctx, "load "+tok.String(), e.policy, e.stats, func() error {
		return e.loadCalendar(ctx, url)
	}); err != nil {
		return ScrapeResult{}, err
	}

	state, err := e.scrollUntilStable(ctx)
	if err != nil {
		return ScrapeResult{}, err
	}
	degraded := state == scrollCapped
	if degraded {
		log.Warn().
			Str("month", tok.String()).
			Int("maxIters", e.rules.MaxScrollIters).
			Msg("Scroll loop hit iteration cap, result may be partial")
	}

	rows, err := retry.Do(ctx, "extract "+tok.String(), e.policy, e.stats, func() ([]rawRow, error) {
		return e.readRows(ctx, tok)
	})
	if err != nil {
		return ScrapeResult{Degraded: degraded}, err
	}

	dataset := e.assemble(rows, tok)
	log.Info().
		Str("month", tok.String()).
		Int("rows", len(rows)).
		Int("records", len(dataset.Events)).
		Bool("degraded", degraded).
		Msg("Month extraction completed")

	return ScrapeResult{Dataset: dataset, Degraded: degraded}, nil
}

func (e *Extractor) loadCalendar(ctx context.Context, url string) error {
	if err := e.driver.Navigate(ctx, url); err != nil {
		return err
	}
	// The table renders after the page load event fires.
	_, err := e.driver.Find(ctx, e.rules.TableSelector)
	return err
}

type scrollState int

const (
	scrollLoading scrollState = iota
	scrollStable
	scrollCapped
)

// scrollUntilStable runs the scroll-and-check loop as a bounded state
// machine. Stability means two consecutive scrolls left the viewport
// offset unchanged; the iteration cap bounds runtime against a page that
// keeps loading content forever.
func (e *Extractor) scrollUntilStable(ctx context.Context) (scrollState, error) {
	state := scrollLoading
	prevOffset := -1
	unchanged := 0

	for iter := 0; state == scrollLoading; iter++ {
		if iter >= e.rules.MaxScrollIters {
			state = scrollCapped
			break
		}

		offset, err := e.driver.ScrollBy(ctx, e.rules.ScrollStepPx)
		if err != nil {
			return state, err
		}
		if offset == prevOffset {
			unchanged++
		} else {
			unchanged = 0
		}
		prevOffset = offset

		if unchanged >= 2 {
			state = scrollStable
			break
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(e.rules.ScrollPause):
		}
	}
	return state, nil
}

// rawRow is one table row before date/time carry-forward and filtering.
// cells maps a cell role (date, time, currency, ...) to its rendered value.
type rawRow struct {
	cells  map[string]string
	siteID string
}

func (e *Extractor) readRows(ctx context.Context, tok MonthToken) ([]rawRow, error) {
	table, err := e.driver.Find(ctx, e.rules.TableSelector)
	if err != nil {
		return nil, err
	}

	var rows []rawRow
	for _, row := range table.FindAll(e.rules.RowSelector) {
		raw := rawRow{
			cells:  map[string]string{},
			siteID: row.Attribute("data-event-id"),
		}

		for _, cell := range row.FindAll(e.rules.CellSelector) {
			class := cell.Attribute("class")
			if e.rules.CellExcluded(class) {
				continue
			}
			role := e.roleFor(class)
			if role == "" {
				continue
			}

			switch role {
			case "impact":
				raw.cells[role] = e.impactOf(cell)
			case "detail":
				if raw.siteID != "" {
					raw.cells[role] = e.detailURL(tok, raw.siteID)
				}
			default:
				raw.cells[role] = strings.TrimSpace(cell.Text())
			}
		}

		if len(raw.cells) > 0 {
			rows = append(rows, raw)
		}
	}
	return rows, nil
}

func (e *Extractor) roleFor(class string) string {
	for marker, role := range e.rules.CellRoles {
		if strings.Contains(class, marker) {
			return role
		}
	}
	return ""
}

// impactOf maps the row's impact icon class to a severity level. An
// unmapped icon yields "" and the row is dropped by the allow-list check.
func (e *Extractor) impactOf(cell driver.Element) string {
	level := ""
	for _, icon := range cell.FindAll("span") {
		if mapped, ok := e.rules.ImpactColorMap[icon.Attribute("class")]; ok {
			level = mapped
		}
	}
	return level
}

var datePattern = regexp.MustCompile(
	`\b(Mon|Tue|Wed|Thu|Fri|Sat|Sun)\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d{1,2})\b`)

// assemble applies date/time carry-forward, drops rows outside the
// allow-lists and assigns identity keys. The rendered table only shows the
// date on a day's first row and omits repeated times, so both are carried
// forward across rows.
func (e *Extractor) assemble(rows []rawRow, tok MonthToken) models.MonthDataset {
	dataset := models.MonthDataset{Month: tok.Month, Year: tok.Year}

	currentDate, currentDay, currentTime := "", "", ""
	dropped := 0
	for _, raw := range rows {
		if text := raw.cells["date"]; text != "" {
			if m := datePattern.FindStringSubmatch(text); m != nil {
				month, err := parseMonthName(m[2])
				day, convErr := strconv.Atoi(m[3])
				if err == nil && convErr == nil {
					currentDay = m[1]
					currentDate = fmt.Sprintf("%02d/%02d/%d", day, month, tok.Year)
				}
			}
		}
		if text := strings.TrimSpace(raw.cells["time"]); text != "" {
			currentTime = text
		}

		// Day header and spacer rows carry at most the date cell.
		event := raw.cells["event"]
		if event == "" {
			continue
		}

		currency := raw.cells["currency"]
		impact := raw.cells["impact"]
		if !e.rules.CurrencyAllowed(currency) || !e.rules.ImpactAllowed(impact) {
			dropped++
			continue
		}

		record := models.EventRecord{
			Date:     currentDate,
			Day:      currentDay,
			Time:     currentTime,
			Currency: currency,
			Impact:   impact,
			Event:    event,
			Detail:   raw.cells["detail"],
			Actual:   raw.cells["actual"],
			Forecast: raw.cells["forecast"],
			Previous: raw.cells["previous"],
		}
		record.EventID = models.DeriveEventID(record.Date, record.Time, record.Currency, record.Event)
		dataset.Events = append(dataset.Events, record)
	}

	if dropped > 0 {
		log.Debug().
			Str("month", tok.String()).
			Int("dropped", dropped).
			Msg("Dropped rows outside currency/impact allow-lists")
	}

	dataset.Sort()
	return dataset
}
