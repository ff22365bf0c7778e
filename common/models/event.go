package models

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// EventRecord is one economic calendar entry. Field order matches the
// persisted CSV column order.
type EventRecord struct {
	EventID  string `csv:"event_id"`
	Date     string `csv:"date"` // DD/MM/YYYY
	Day      string `csv:"day"`  // Mon..Sun
	Time     string `csv:"time"` // as rendered, e.g. "3:00am"; empty, "All Day" or "Tentative" for untimed events
	Currency string `csv:"currency"`
	Impact   string `csv:"impact"`
	Event    string `csv:"event"`
	Detail   string `csv:"detail"`
	Actual   string `csv:"actual"`
	Forecast string `csv:"forecast"`
	Previous string `csv:"previous"`
}

// CSVHeader is the required header row of a persisted month dataset.
var CSVHeader = []string{
	"event_id", "date", "day", "time", "currency", "impact",
	"event", "detail", "actual", "forecast", "previous",
}

// DeriveEventID computes the stable identity key of a logical event. The
// same date/time/currency/title always hashes to the same ID, so records
// from separate runs can be correlated.
func DeriveEventID(date, timeStr, currency, event string) string {
	sum := sha1.Sum([]byte(date + "|" + timeStr + "|" + currency + "|" + event))
	return hex.EncodeToString(sum[:])[:12]
}

// Untimed reports whether the event has no concrete clock time.
func (r EventRecord) Untimed() bool {
	switch strings.ToLower(strings.TrimSpace(r.Time)) {
	case "", "all day", "tentative":
		return true
	}
	return false
}

// ValuesEqual reports whether the released figures of two records match.
func (r EventRecord) ValuesEqual(other EventRecord) bool {
	return r.Actual == other.Actual &&
		r.Forecast == other.Forecast &&
		r.Previous == other.Previous
}

// MonthDataset is the ordered set of records scraped for one month.
type MonthDataset struct {
	Month  time.Month
	Year   int
	Events []EventRecord
}

// Sort orders events by (date, time) ascending. Untimed events sort before
// timed events on the same date; ties break on event ID so the order is
// deterministic.
func (d *MonthDataset) Sort() {
	sort.SliceStable(d.Events, func(i, j int) bool {
		a, b := d.Events[i], d.Events[j]
		da, db := parseRecordDate(a.Date), parseRecordDate(b.Date)
		if !da.Equal(db) {
			return da.Before(db)
		}
		au, bu := a.Untimed(), b.Untimed()
		if au != bu {
			return au
		}
		if !au {
			ta, tb := parseRecordTime(a.Time), parseRecordTime(b.Time)
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
		}
		return a.EventID < b.EventID
	})
}

func parseRecordDate(s string) time.Time {
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseRecordTime(s string) time.Time {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, layout := range []string{"3:04pm", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
