// Package dataset persists per-month event datasets as CSV files and
// reconciles fresh extractions against previously stored data.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"ffcalendar/calendar"
	"ffcalendar/common/models"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// ErrCorruptDataset marks a persisted dataset that cannot be read back:
// missing or mismatched header, or unparsable rows.
var ErrCorruptDataset = errors.New("corrupt dataset file")

// Store reads and writes one month's dataset.
type Store interface {
	// Load returns the persisted dataset for the month, or None when no
	// file exists yet. An unreadable file yields ErrCorruptDataset.
	Load(ctx context.Context, tok calendar.MonthToken) (mo.Option[models.MonthDataset], error)
	// Save atomically replaces the month's dataset.
	Save(ctx context.Context, tok calendar.MonthToken, ds models.MonthDataset) error
}

// CSVStore keeps one CSV file per month under a directory, named after the
// month, e.g. "January_2007_news.csv".
type CSVStore struct {
	dir string
}

// NewCSVStore creates a store rooted at dir.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{dir: dir}
}

func (s *CSVStore) path(tok calendar.MonthToken) string {
	return filepath.Join(s.dir, tok.FileStem()+"_news.csv")
}

// Load reads the month's CSV file if present, validating the header before
// decoding rows.
func (s *CSVStore) Load(ctx context.Context, tok calendar.MonthToken) (mo.Option[models.MonthDataset], error) {
	none := mo.None[models.MonthDataset]()

	raw, err := os.ReadFile(s.path(tok))
	if errors.Is(err, os.ErrNotExist) {
		return none, nil
	}
	if err != nil {
		return none, fmt.Errorf("reading dataset %s: %w", s.path(tok), err)
	}

	if err := validateHeader(raw); err != nil {
		return none, err
	}

	var records []models.EventRecord
	if err := gocsv.UnmarshalBytes(raw, &records); err != nil {
		return none, fmt.Errorf("%w: %s: %v", ErrCorruptDataset, s.path(tok), err)
	}

	log.Info().
		Str("path", s.path(tok)).
		Int("records", len(records)).
		Msg("Loaded existing dataset")

	return mo.Some(models.MonthDataset{
		Month:  tok.Month,
		Year:   tok.Year,
		Events: records,
	}), nil
}

func validateHeader(raw []byte) error {
	header, err := csv.NewReader(bytes.NewReader(raw)).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: file is empty", ErrCorruptDataset)
		}
		return fmt.Errorf("%w: unreadable header: %v", ErrCorruptDataset, err)
	}
	if !slices.Equal(header, models.CSVHeader) {
		return fmt.Errorf("%w: header %v does not match %v", ErrCorruptDataset, header, models.CSVHeader)
	}
	return nil
}

// Save writes the dataset to a temp file in the target directory and
// renames it over the final path, so readers never observe a partial file.
func (s *CSVStore) Save(ctx context.Context, tok calendar.MonthToken, ds models.MonthDataset) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating dataset dir %s: %w", s.dir, err)
	}

	raw, err := gocsv.MarshalBytes(&ds.Events)
	if err != nil {
		return fmt.Errorf("encoding dataset for %s: %w", tok, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+tok.FileStem()+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp dataset file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp dataset file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp dataset file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(tok)); err != nil {
		return fmt.Errorf("committing dataset %s: %w", s.path(tok), err)
	}

	log.Info().
		Str("path", s.path(tok)).
		Int("records", len(ds.Events)).
		Msg("Saved dataset")
	return nil
}
