// Package memory implements the browser capability interface against a
// synthetic in-process DOM. It stands in for a real rendering engine in tests
// and in deployments that only exercise the orchestration contract.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/google/uuid"
)

// Element is one node of a seeded synthetic page. Selectors match by exact
// string comparison; there is no CSS engine here.
type Element struct {
	Selector string
	Text     string
	Value    string
	Fillable bool
	// Href, when set, makes a click on this element navigate the page.
	Href string
}

type page struct {
	url string
	doc []Element
}

// Backend is the in-memory placeholder implementation of backend.Browser.
type Backend struct {
	mu       sync.Mutex
	pages    map[backend.PageID]*page
	content  map[string][]Element
	navFails map[string]string
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		pages:    make(map[backend.PageID]*page),
		content:  make(map[string][]Element),
		navFails: make(map[string]string),
	}
}

// Seed registers the synthetic document served when a page navigates to url.
func (b *Backend) Seed(url string, doc []Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content[url] = doc
}

// FailNavigation makes any navigation to url fail with NAVIGATION_FAILED.
func (b *Backend) FailNavigation(url, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navFails[url] = reason
}

func (b *Backend) Open(ctx context.Context) (backend.PageID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := backend.PageID("page-" + uuid.New().String())
	b.pages[id] = &page{url: "about:blank"}
	return id, nil
}

func (b *Backend) Close(ctx context.Context, id backend.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pages[id]; !ok {
		return backend.NewError(backend.KindBackend, "unknown page: "+string(id), nil)
	}
	delete(b.pages, id)
	return nil
}

func (b *Backend) Navigate(ctx context.Context, id backend.PageID, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.pageLocked(id)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return backend.NewError(backend.KindNavigationFailed, "unsupported URL scheme: "+url, nil)
	}
	if reason, ok := b.navFails[url]; ok {
		return backend.NewError(backend.KindNavigationFailed, reason, nil)
	}
	p.url = url
	p.doc = cloneDoc(b.content[url])
	return nil
}

func (b *Backend) Fill(ctx context.Context, id backend.PageID, values map[string]string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.pageLocked(id)
	if err != nil {
		return 0, err
	}

	// Map iteration order is random; fill in sorted selector order so the
	// first unmatched selector reported is deterministic.
	selectors := make([]string, 0, len(values))
	for selector := range values {
		selectors = append(selectors, selector)
	}
	sort.Strings(selectors)

	filled := 0
	for _, selector := range selectors {
		value := values[selector]
		idx := -1
		for i := range p.doc {
			if p.doc[i].Selector == selector && p.doc[i].Fillable {
				idx = i
				break
			}
		}
		if idx < 0 {
			return filled, backend.NewError(backend.KindSelectorNotFound,
				fmt.Sprintf("no fillable element matches %q", selector), nil)
		}
		p.doc[idx].Value = value
		filled++
	}
	return filled, nil
}

func (b *Backend) Click(ctx context.Context, id backend.PageID, selector string) (backend.ClickResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.pageLocked(id)
	if err != nil {
		return backend.ClickResult{}, err
	}

	for i := range p.doc {
		if p.doc[i].Selector != selector {
			continue
		}
		result := backend.ClickResult{Clicked: true}
		if href := p.doc[i].Href; href != "" {
			p.url = href
			p.doc = cloneDoc(b.content[href])
			result.Navigated = true
			result.URL = href
		}
		return result, nil
	}
	return backend.ClickResult{}, backend.NewError(backend.KindSelectorNotFound,
		fmt.Sprintf("no element matches %q", selector), nil)
}

func (b *Backend) Extract(ctx context.Context, id backend.PageID, selectors []string) ([]backend.ExtractEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.pageLocked(id)
	if err != nil {
		return nil, err
	}

	entries := make([]backend.ExtractEntry, 0, len(selectors))
	for _, selector := range selectors {
		matches := []string{}
		for i := range p.doc {
			if p.doc[i].Selector == selector {
				matches = append(matches, p.doc[i].Text)
			}
		}
		entries = append(entries, backend.ExtractEntry{Selector: selector, Matches: matches})
	}
	return entries, nil
}

func (b *Backend) Screenshot(ctx context.Context, id backend.PageID, fullPage bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.pageLocked(id)
	if err != nil {
		return nil, err
	}
	mode := "viewport"
	if fullPage {
		mode = "full"
	}
	return []byte(fmt.Sprintf("\x89PNG synthetic %s %s", mode, p.url)), nil
}

func (b *Backend) PDF(ctx context.Context, id backend.PageID, landscape bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.pageLocked(id)
	if err != nil {
		return nil, err
	}
	orientation := "portrait"
	if landscape {
		orientation = "landscape"
	}
	return []byte(fmt.Sprintf("%%PDF-1.4 synthetic %s %s", orientation, p.url)), nil
}

func (b *Backend) pageLocked(id backend.PageID) (*page, error) {
	p, ok := b.pages[id]
	if !ok {
		return nil, backend.NewError(backend.KindBackend, "unknown page: "+string(id), nil)
	}
	return p, nil
}

func cloneDoc(doc []Element) []Element {
	out := make([]Element, len(doc))
	copy(out, doc)
	return out
}
