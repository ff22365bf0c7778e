package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ffcalendar/calendar"
	"ffcalendar/common/config"
	"ffcalendar/common/retry"
	"ffcalendar/dataset"
	"ffcalendar/driver"
)

const pageHTML = `<!DOCTYPE html>
<html><body>
<table class="calendar__table">
  <tr><td class="calendar__cell calendar__date">Sun Jun 1</td></tr>
  <tr data-event-id="7001">
    <td class="calendar__cell calendar__time">3:00am</td>
    <td class="calendar__cell calendar__currency">USD</td>
    <td class="calendar__cell calendar__impact"><span class="icon icon--ff-impact-red"></span></td>
    <td class="calendar__cell calendar__event">ISM Manufacturing PMI</td>
    <td class="calendar__cell calendar__actual">48.7</td>
    <td class="calendar__cell calendar__forecast">49.2</td>
    <td class="calendar__cell calendar__previous">48.9</td>
  </tr>
</table>
</body></html>`

var (
	may2025  = calendar.MonthToken{Month: time.May, Year: 2025}
	june2025 = calendar.MonthToken{Month: time.June, Year: 2025}
)

type failingDriver struct{}

func (d *failingDriver) Navigate(ctx context.Context, url string) error {
	return retry.Transient(errors.New("connection refused"))
}

func (d *failingDriver) ScrollBy(ctx context.Context, px int) (int, error) {
	return 0, retry.Transient(errors.New("connection refused"))
}

func (d *failingDriver) Find(ctx context.Context, selector string) (driver.Element, error) {
	return nil, retry.Transient(errors.New("connection refused"))
}

func (d *failingDriver) FindAll(ctx context.Context, selector string) ([]driver.Element, error) {
	return nil, retry.Transient(errors.New("connection refused"))
}

func snapshotSession(t *testing.T) SessionFunc {
	t.Helper()
	return func(ctx context.Context) (driver.PageDriver, func(), error) {
		snap, err := driver.NewSnapshot(strings.NewReader(pageHTML))
		if err != nil {
			return nil, nil, err
		}
		return snap, func() {}, nil
	}
}

func testOrchestrator(session SessionFunc, store dataset.Store) *Orchestrator {
	rules := config.DefaultScrapeRules()
	rules.ScrollPause = time.Millisecond
	policy := retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return New(session, store, rules, policy, 0)
}

func TestRunContinuesAfterMonthFailure(t *testing.T) {
	sessions := 0
	session := func(ctx context.Context) (driver.PageDriver, func(), error) {
		sessions++
		if sessions == 1 {
			return &failingDriver{}, func() {}, nil
		}
		return snapshotSession(t)(ctx)
	}

	store := dataset.NewCSVStore(t.TempDir())
	report, err := testOrchestrator(session, store).Run(context.Background(), Request{
		Months: []calendar.MonthToken{may2025, june2025},
		Mode:   dataset.ModeUpdate,
	})
	if err != nil {
		t.Fatalf("A failed month must not abort the run: %v", err)
	}
	if len(report.Months) != 2 {
		t.Fatalf("Expected 2 month results, got %d", len(report.Months))
	}

	failed := report.Months[0]
	var scrapeErr *calendar.MonthScrapeError
	if !errors.As(failed.Err, &scrapeErr) {
		t.Fatalf("Expected MonthScrapeError, got %v", failed.Err)
	}
	if !errors.Is(failed.Err, retry.ErrExhausted) {
		t.Errorf("Expected exhaustion cause, got %v", failed.Err)
	}

	succeeded := report.Months[1]
	if succeeded.Err != nil {
		t.Fatalf("Second month should still execute, got %v", succeeded.Err)
	}
	if succeeded.Records != 1 || succeeded.Summary.Inserted != 1 {
		t.Errorf("Unexpected second month result: %+v", succeeded)
	}

	if !report.Failed() {
		t.Error("Report must surface the failed month")
	}
	if report.Retry.Exhausted == 0 {
		t.Error("Expected exhausted operations in retry stats")
	}
}

func TestRunMergeIsIdempotentAcrossRuns(t *testing.T) {
	store := dataset.NewCSVStore(t.TempDir())
	orchestrator := testOrchestrator(snapshotSession(t), store)
	req := Request{Months: []calendar.MonthToken{june2025}, Mode: dataset.ModeUpdate}

	first, err := orchestrator.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Months[0].Summary.Inserted != 1 {
		t.Fatalf("First run should insert, got %+v", first.Months[0].Summary)
	}

	second, err := orchestrator.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	got := second.Months[0].Summary
	if got.Inserted != 0 || got.Updated != 0 || got.Unchanged != 1 {
		t.Errorf("Second run should change nothing, got %+v", got)
	}
}

func TestRunSoftFallsBackOnCorruptDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, june2025.FileStem()+"_news.csv")
	if err := os.WriteFile(path, []byte("not,a,dataset\n1,2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := dataset.NewCSVStore(dir)
	report, err := testOrchestrator(snapshotSession(t), store).Run(context.Background(), Request{
		Months: []calendar.MonthToken{june2025},
		Mode:   dataset.ModeUpdate,
	})
	if err != nil {
		t.Fatal(err)
	}

	result := report.Months[0]
	if result.Err != nil {
		t.Fatalf("Corrupt existing data must be recoverable, got %v", result.Err)
	}
	if result.Summary.Inserted != 1 {
		t.Errorf("Expected fresh data inserted over empty fallback, got %+v", result.Summary)
	}

	// The rewritten file must be readable again.
	loaded, err := store.Load(context.Background(), june2025)
	if err != nil {
		t.Fatal(err)
	}
	if ds, ok := loaded.Get(); !ok || len(ds.Events) != 1 {
		t.Errorf("Expected repaired dataset with 1 record")
	}
}

func TestRunRejectsInvalidPolicy(t *testing.T) {
	store := dataset.NewCSVStore(t.TempDir())
	orchestrator := New(snapshotSession(t), store, config.DefaultScrapeRules(), retry.Policy{MaxRetries: -1}, 0)

	if _, err := orchestrator.Run(context.Background(), Request{
		Months: []calendar.MonthToken{june2025},
		Mode:   dataset.ModeUpdate,
	}); err == nil {
		t.Error("Expected permanent configuration error")
	}
}

func TestRunRejectsEmptyMonthList(t *testing.T) {
	store := dataset.NewCSVStore(t.TempDir())
	orchestrator := testOrchestrator(snapshotSession(t), store)

	if _, err := orchestrator.Run(context.Background(), Request{Mode: dataset.ModeUpdate}); !errors.Is(err, calendar.ErrEmptyRange) {
		t.Errorf("Expected ErrEmptyRange, got %v", err)
	}
}
