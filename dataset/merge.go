package dataset

import (
	"ffcalendar/common/models"

	"github.com/samber/mo"
)

// Mode selects how a fresh extraction reconciles with persisted data.
type Mode string

const (
	// ModeUpdate keeps existing records and only inserts or replaces what
	// the fresh batch adds or changes. Records missing from the fresh
	// batch are retained; the merge never deletes.
	ModeUpdate Mode = "update"
	// ModeOverwrite discards existing data entirely.
	ModeOverwrite Mode = "overwrite"
)

// ChangeSummary counts the outcome of one merge.
type ChangeSummary struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// Merge reconciles fresh against existing by event ID. In update mode a
// fresh record replaces its stored counterpart only when one of the
// released figures changed; otherwise the stored record stays untouched.
// The result is re-sorted per the dataset ordering invariant.
func Merge(fresh models.MonthDataset, existing mo.Option[models.MonthDataset], mode Mode) (models.MonthDataset, ChangeSummary) {
	if mode == ModeOverwrite || existing.IsAbsent() {
		result := fresh
		result.Sort()
		return result, ChangeSummary{Inserted: len(result.Events)}
	}

	result := models.MonthDataset{Month: fresh.Month, Year: fresh.Year}
	result.Events = append(result.Events, existing.MustGet().Events...)

	index := make(map[string]int, len(result.Events))
	for i, record := range result.Events {
		index[record.EventID] = i
	}

	var summary ChangeSummary
	for _, record := range fresh.Events {
		at, found := index[record.EventID]
		switch {
		case !found:
			index[record.EventID] = len(result.Events)
			result.Events = append(result.Events, record)
			summary.Inserted++
		case !result.Events[at].ValuesEqual(record):
			result.Events[at] = record
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	result.Sort()
	return result, summary
}
