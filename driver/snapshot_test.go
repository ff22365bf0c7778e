package driver

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const fixtureHTML = `<html><body>
<table class="calendar__table">
  <tr data-event-id="42">
    <td class="calendar__cell calendar__currency">USD</td>
    <td class="calendar__cell calendar__impact"><span class="icon red"></span></td>
  </tr>
  <tr><td class="calendar__cell calendar__date">Sun Jun 1</td></tr>
</table>
</body></html>`

func newFixture(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(strings.NewReader(fixtureHTML))
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestSnapshotFind(t *testing.T) {
	snap := newFixture(t)

	table, err := snap.Find(context.Background(), ".calendar__table")
	if err != nil {
		t.Fatal(err)
	}
	rows := table.FindAll("tr")
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if got := rows[0].Attribute("data-event-id"); got != "42" {
		t.Errorf("Attribute = %q, want \"42\"", got)
	}
	if got := rows[1].FindAll("td")[0].Text(); got != "Sun Jun 1" {
		t.Errorf("Text = %q", got)
	}
}

func TestSnapshotFindMissingIsNotReady(t *testing.T) {
	snap := newFixture(t)

	if _, err := snap.Find(context.Background(), ".does-not-exist"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestSnapshotNestedFindAll(t *testing.T) {
	snap := newFixture(t)

	cells, err := snap.FindAll(context.Background(), "td")
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 3 {
		t.Fatalf("Expected 3 cells, got %d", len(cells))
	}

	impact := cells[1]
	spans := impact.FindAll("span")
	if len(spans) != 1 || spans[0].Attribute("class") != "icon red" {
		t.Errorf("Unexpected impact spans: %d", len(spans))
	}
}

func TestSnapshotScrollIsImmediatelyStable(t *testing.T) {
	snap := newFixture(t)

	a, err := snap.ScrollBy(context.Background(), 500)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := snap.ScrollBy(context.Background(), 500)
	if a != b {
		t.Errorf("Snapshot offsets should not move: %d vs %d", a, b)
	}
}
