package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is a PageDriver over a static HTML document. It replays a saved
// calendar page without a browser, which keeps the extraction pipeline
// testable and makes offline re-parsing of captured pages possible.
type Snapshot struct {
	doc *goquery.Document
}

// NewSnapshot parses an HTML document from r.
func NewSnapshot(r io.Reader) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &Snapshot{doc: doc}, nil
}

// NewSnapshotFromFile parses a saved HTML page from disk.
func NewSnapshotFromFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()
	return NewSnapshot(f)
}

// Navigate is a no-op: the document is already loaded.
func (d *Snapshot) Navigate(ctx context.Context, url string) error {
	if d.doc == nil {
		return fmt.Errorf("%w: no snapshot document", ErrNotReady)
	}
	return nil
}

// ScrollBy reports a constant offset. A static document has its full
// content rendered, so the scroll loop stabilizes immediately.
func (d *Snapshot) ScrollBy(ctx context.Context, px int) (int, error) {
	return 0, nil
}

// Find returns the first element matching the selector.
func (d *Snapshot) Find(ctx context.Context, selector string) (Element, error) {
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: element %q not found in snapshot", ErrNotReady, selector)
	}
	return snapshotElement{sel: sel.First()}, nil
}

// FindAll returns every element matching the selector.
func (d *Snapshot) FindAll(ctx context.Context, selector string) ([]Element, error) {
	return collectSelection(d.doc.Find(selector)), nil
}

type snapshotElement struct {
	sel *goquery.Selection
}

func (e snapshotElement) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

func (e snapshotElement) Attribute(name string) string {
	value, _ := e.sel.Attr(name)
	return value
}

func (e snapshotElement) FindAll(selector string) []Element {
	return collectSelection(e.sel.Find(selector))
}

func collectSelection(sel *goquery.Selection) []Element {
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, snapshotElement{sel: s})
	})
	return elements
}
