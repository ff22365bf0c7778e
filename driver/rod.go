package driver

import (
	"context"
	"fmt"
	"time"

	"ffcalendar/common/retry"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Rod is the production PageDriver backed by a go-rod browser page.
type Rod struct {
	page    *rod.Page
	timeout time.Duration
}

// NewRod opens a fresh page on the connected browser. Close must be called
// when the session is done.
func NewRod(browser *rod.Browser, timeout time.Duration) (*Rod, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	return &Rod{page: page, timeout: timeout}, nil
}

// Close tears down the underlying page.
func (d *Rod) Close() {
	if err := d.page.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing page")
	}
}

// Navigate loads the URL and waits for the load event. Failures are marked
// transient: the remote renders its table late and a reload usually helps.
func (d *Rod) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.timeout)
	if err := page.Navigate(url); err != nil {
		return retry.Transient(fmt.Errorf("%w: navigating to %s: %v", ErrNotReady, url, err))
	}
	if err := page.WaitLoad(); err != nil {
		return retry.Transient(fmt.Errorf("%w: waiting for load of %s: %v", ErrNotReady, url, err))
	}
	return nil
}

// ScrollBy scrolls the viewport down and reports the resulting offset.
func (d *Rod) ScrollBy(ctx context.Context, px int) (int, error) {
	page := d.page.Context(ctx).Timeout(d.timeout)
	if _, err := page.Eval(`px => window.scrollTo(0, window.pageYOffset + px)`, px); err != nil {
		return 0, retry.Transient(fmt.Errorf("%w: scrolling: %v", ErrNotReady, err))
	}
	res, err := page.Eval(`() => window.pageYOffset`)
	if err != nil {
		return 0, retry.Transient(fmt.Errorf("%w: reading scroll offset: %v", ErrNotReady, err))
	}
	return res.Value.Int(), nil
}

// Find returns the first element matching the selector.
func (d *Rod) Find(ctx context.Context, selector string) (Element, error) {
	el, err := d.page.Context(ctx).Timeout(d.timeout).Element(selector)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("%w: element %q: %v", ErrNotReady, selector, err))
	}
	return rodElement{el: el}, nil
}

// FindAll returns every element matching the selector.
func (d *Rod) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Timeout(d.timeout).Elements(selector)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("%w: elements %q: %v", ErrNotReady, selector, err))
	}
	return wrapRodElements(els), nil
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Text() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return text
}

func (e rodElement) Attribute(name string) string {
	attr, err := e.el.Attribute(name)
	if err != nil || attr == nil {
		return ""
	}
	return *attr
}

func (e rodElement) FindAll(selector string) []Element {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil
	}
	return wrapRodElements(els)
}

func wrapRodElements(els rod.Elements) []Element {
	wrapped := make([]Element, 0, len(els))
	for _, el := range els {
		wrapped = append(wrapped, rodElement{el: el})
	}
	return wrapped
}
