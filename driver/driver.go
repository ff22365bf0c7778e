// Package driver isolates the browser automation layer behind a small
// capability interface so the extraction pipeline never touches the real
// automation library's types.
package driver

import (
	"context"
	"errors"
)

// ErrNotReady signals that the page is not (yet) in the expected state:
// navigation pending, element missing, rendering lagging. Callers treat it
// as transient and retry.
var ErrNotReady = errors.New("page not ready")

// Element is one rendered node of the page.
type Element interface {
	// Text returns the rendered text content of the element.
	Text() string
	// Attribute returns the named attribute, or "" when absent.
	Attribute(name string) string
	// FindAll returns descendant elements matching the CSS selector.
	FindAll(selector string) []Element
}

// PageDriver is the capability surface the scraper needs from a browsing
// session. Every call may fail with an error wrapping ErrNotReady.
type PageDriver interface {
	// Navigate loads a URL and waits for the initial render.
	Navigate(ctx context.Context, url string) error
	// ScrollBy scrolls the viewport down by px pixels and returns the
	// resulting vertical offset.
	ScrollBy(ctx context.Context, px int) (int, error)
	// Find returns the first element matching the CSS selector.
	Find(ctx context.Context, selector string) (Element, error)
	// FindAll returns every element matching the CSS selector.
	FindAll(ctx context.Context, selector string) ([]Element, error)
}
