package backend

import (
	"context"
	"encoding/json"
)

// PageID identifies a page inside a backend. It is owned by the backend and
// never shown to tool callers; the session layer maps tab IDs to page IDs.
type PageID string

// ClickResult reports the outcome of a click and any navigation it caused.
type ClickResult struct {
	Clicked   bool   `json:"clicked"`
	Navigated bool   `json:"navigated"`
	URL       string `json:"url,omitempty"`
}

// ExtractEntry holds the matched text for one selector, in match order.
type ExtractEntry struct {
	Selector string
	Matches  []string
}

// ExtractResult preserves the caller's selector order. Selectors with no
// matches carry an empty sequence, never a missing key.
type ExtractResult struct {
	Entries []ExtractEntry
}

// MarshalJSON emits a JSON object whose keys appear in selector order.
func (r ExtractResult) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range r.Entries {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(e.Selector)
		if err != nil {
			return nil, err
		}
		matches := e.Matches
		if matches == nil {
			matches = []string{}
		}
		val, err := json.Marshal(matches)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// Browser is the capability interface the dispatch core drives. The in-memory
// placeholder and the CDP-driven implementation are interchangeable; callers
// select one at construction time and never branch on the concrete type.
//
// Every method returns either success data or a *CodedError.
type Browser interface {
	// Open creates a new blank page and returns its backend handle.
	Open(ctx context.Context) (PageID, error)

	// Close releases the page. Closing an unknown page is a BACKEND_ERROR;
	// the session layer guards against double close before calling.
	Close(ctx context.Context, page PageID) error

	// Navigate loads the URL in the page.
	Navigate(ctx context.Context, page PageID, url string) error

	// Fill sets values on form fields by selector. It reports how many fields
	// were filled; the first unmatched selector aborts with
	// SELECTOR_NOT_FOUND and the remaining selectors are not attempted.
	Fill(ctx context.Context, page PageID, values map[string]string) (int, error)

	// Click clicks the first element matching selector and reports whether a
	// navigation resulted.
	Click(ctx context.Context, page PageID, selector string) (ClickResult, error)

	// Extract returns matched text per selector, preserving input order.
	Extract(ctx context.Context, page PageID, selectors []string) ([]ExtractEntry, error)

	// Screenshot captures the page as PNG bytes.
	Screenshot(ctx context.Context, page PageID, fullPage bool) ([]byte, error)

	// PDF renders the page as PDF bytes.
	PDF(ctx context.Context, page PageID, landscape bool) ([]byte, error)
}
