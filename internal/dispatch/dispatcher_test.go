package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/dgnsrekt/web_agent/internal/artifact"
	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/dgnsrekt/web_agent/internal/backend/memory"
	"github.com/dgnsrekt/web_agent/internal/session"
)

type fixture struct {
	dispatcher *Dispatcher
	tabs       *session.Manager
	browser    *memory.Backend
	artifacts  *artifact.Store
}

func newFixture(t *testing.T, maxTabs int) *fixture {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.NewStore() error = %v", err)
	}
	browser := memory.New()
	tabs := session.NewManager(maxTabs)
	return &fixture{
		dispatcher: NewDispatcher(tabs, browser, store),
		tabs:       tabs,
		browser:    browser,
		artifacts:  store,
	}
}

func (f *fixture) mustNewTab(t *testing.T, url string) string {
	t.Helper()
	params := Params{}
	if url != "" {
		params["url"] = url
	}
	res := f.dispatcher.Call(context.Background(), ToolNewTab, params)
	if !res.OK {
		t.Fatalf("new_tab failed: %+v", res.Error)
	}
	payload, ok := res.Result.(NewTabPayload)
	if !ok {
		t.Fatalf("new_tab payload type = %T; want NewTabPayload", res.Result)
	}
	return payload.TabID
}

func errKind(res Result) string {
	if res.Error == nil {
		return ""
	}
	return res.Error.Kind
}

func TestNewTabWithNavigation(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://example.com", []memory.Element{{Selector: "h1", Text: "hello"}})

	tabID := f.mustNewTab(t, "https://example.com")

	tab, err := f.tabs.Get(tabID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tab.CurrentURL != "https://example.com" {
		t.Fatalf("CurrentURL = %q; want %q", tab.CurrentURL, "https://example.com")
	}
	if len(tab.History) != 1 {
		t.Fatalf("len(History) = %d; want 1", len(tab.History))
	}
}

func TestNewTabUnwindsOnNavigationFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.FailNavigation("https://down.example", "host unreachable")

	res := f.dispatcher.Call(context.Background(), ToolNewTab, Params{"url": "https://down.example"})
	if res.OK {
		t.Fatal("new_tab succeeded; want NAVIGATION_FAILED")
	}
	if got := errKind(res); got != backend.KindNavigationFailed {
		t.Fatalf("error kind = %q; want %q", got, backend.KindNavigationFailed)
	}

	// The failed call must leave the registry exactly as before: no open
	// tab, and no closed ghost either.
	if got := f.tabs.List(); len(got) != 0 {
		t.Fatalf("len(List()) = %d (%+v); want 0 after failed new_tab", len(got), got)
	}
}

func TestNewTabRejectsBadScheme(t *testing.T) {
	f := newFixture(t, 0)

	res := f.dispatcher.Call(context.Background(), ToolNewTab, Params{"url": "ftp://example.com"})
	if got := errKind(res); got != backend.KindValidation {
		t.Fatalf("error kind = %q; want %q", got, backend.KindValidation)
	}
	if len(f.tabs.List()) != 0 {
		t.Fatalf("len(tabs) = %d; want 0 after rejected url", len(f.tabs.List()))
	}
}

func TestNavigateUnknownTab(t *testing.T) {
	f := newFixture(t, 0)

	res := f.dispatcher.Call(context.Background(), ToolNavigatePage, Params{
		"tab_id": "tab-unknown",
		"url":    "https://example.com",
	})
	if got := errKind(res); got != backend.KindNotFound {
		t.Fatalf("error kind = %q; want %q", got, backend.KindNotFound)
	}
}

func TestCloseTabThenActFails(t *testing.T) {
	f := newFixture(t, 0)
	tabID := f.mustNewTab(t, "")

	res := f.dispatcher.Call(context.Background(), ToolCloseTab, Params{"tab_id": tabID})
	if !res.OK {
		t.Fatalf("close_tab failed: %+v", res.Error)
	}
	payload, ok := res.Result.(ClosePayload)
	if !ok || payload.Status != "closed" {
		t.Fatalf("close payload = %+v; want status closed", res.Result)
	}

	res = f.dispatcher.Call(context.Background(), ToolNavigatePage, Params{
		"tab_id": tabID,
		"url":    "https://example.com",
	})
	if got := errKind(res); got != backend.KindAlreadyClosed {
		t.Fatalf("error kind = %q; want %q", got, backend.KindAlreadyClosed)
	}
}

func TestFillFormValidation(t *testing.T) {
	f := newFixture(t, 0)
	tabID := f.mustNewTab(t, "")

	res := f.dispatcher.Call(context.Background(), ToolFillForm, Params{"tab_id": tabID})
	if got := errKind(res); got != backend.KindValidation {
		t.Fatalf("missing mapping error kind = %q; want %q", got, backend.KindValidation)
	}

	res = f.dispatcher.Call(context.Background(), ToolFillForm, Params{
		"tab_id":              tabID,
		"selectors_to_values": map[string]any{},
	})
	if got := errKind(res); got != backend.KindValidation {
		t.Fatalf("empty mapping error kind = %q; want %q", got, backend.KindValidation)
	}
}

func TestFillFormAgainstSeededPage(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://form.example", []memory.Element{
		{Selector: "#user", Fillable: true},
		{Selector: "#pass", Fillable: true},
	})
	tabID := f.mustNewTab(t, "https://form.example")

	res := f.dispatcher.Call(context.Background(), ToolFillForm, Params{
		"tab_id": tabID,
		"selectors_to_values": map[string]any{
			"#user": "alice",
			"#pass": "hunter2",
		},
	})
	if !res.OK {
		t.Fatalf("fill_form failed: %+v", res.Error)
	}
	payload, ok := res.Result.(FillPayload)
	if !ok || payload.Count != 2 || payload.Status != "filled" {
		t.Fatalf("fill payload = %+v; want 2 filled", res.Result)
	}
}

func TestExtractDataPreservesSelectorOrder(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://page.example", []memory.Element{
		{Selector: "h1", Text: "title"},
		{Selector: ".item", Text: "one"},
		{Selector: ".item", Text: "two"},
	})
	tabID := f.mustNewTab(t, "https://page.example")

	res := f.dispatcher.Call(context.Background(), ToolExtractData, Params{
		"tab_id":    tabID,
		"selectors": []any{".item", "h1", ".absent"},
	})
	if !res.OK {
		t.Fatalf("extract_data failed: %+v", res.Error)
	}
	payload, ok := res.Result.(ExtractPayload)
	if !ok {
		t.Fatalf("extract payload type = %T; want ExtractPayload", res.Result)
	}

	data, err := json.Marshal(payload.Data)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{".item":["one","two"],"h1":["title"],".absent":[]}`
	if string(data) != want {
		t.Fatalf("extract json = %s; want %s", data, want)
	}
}

func TestCaptureScreenshotStoresArtifact(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://page.example", nil)
	tabID := f.mustNewTab(t, "https://page.example")

	res := f.dispatcher.Call(context.Background(), ToolCaptureScreenshot, Params{
		"tab_id":    tabID,
		"full_page": true,
	})
	if !res.OK {
		t.Fatalf("capture_screenshot failed: %+v", res.Error)
	}
	payload, ok := res.Result.(ArtifactPayload)
	if !ok {
		t.Fatalf("payload type = %T; want ArtifactPayload", res.Result)
	}
	if payload.Kind != artifact.KindScreenshot || payload.Format != "png" {
		t.Fatalf("payload = %+v; want screenshot/png", payload)
	}

	meta, err := f.artifacts.Get(payload.ArtifactID)
	if err != nil {
		t.Fatalf("artifacts.Get() error = %v", err)
	}
	if meta.TabID != tabID || !meta.FullPage {
		t.Fatalf("meta = %+v; want tab %s full_page", meta, tabID)
	}

	tab, err := f.tabs.Get(tabID)
	if err != nil {
		t.Fatalf("tabs.Get() error = %v", err)
	}
	if tab.LastArtifact != payload.ArtifactID {
		t.Fatalf("LastArtifact = %q; want %q", tab.LastArtifact, payload.ArtifactID)
	}
}

func TestGeneratePDFStoresArtifact(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://page.example", nil)
	tabID := f.mustNewTab(t, "https://page.example")

	res := f.dispatcher.Call(context.Background(), ToolGeneratePDF, Params{
		"tab_id":    tabID,
		"landscape": true,
	})
	if !res.OK {
		t.Fatalf("generate_pdf failed: %+v", res.Error)
	}
	payload := res.Result.(ArtifactPayload)

	data, contentType, err := f.artifacts.Read(payload.ArtifactID)
	if err != nil {
		t.Fatalf("artifacts.Read() error = %v", err)
	}
	if contentType != "application/pdf" {
		t.Fatalf("content type = %q; want application/pdf", contentType)
	}
	if len(data) == 0 {
		t.Fatal("pdf payload is empty")
	}
}

func TestGoBackThroughDispatcher(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://a.example", nil)
	f.browser.Seed("https://b.example", nil)
	tabID := f.mustNewTab(t, "https://a.example")

	res := f.dispatcher.Call(context.Background(), ToolNavigatePage, Params{
		"tab_id": tabID,
		"url":    "https://b.example",
	})
	if !res.OK {
		t.Fatalf("navigate_page failed: %+v", res.Error)
	}

	res = f.dispatcher.Call(context.Background(), ToolGoBack, Params{"tab_id": tabID})
	if !res.OK {
		t.Fatalf("go_back failed: %+v", res.Error)
	}
	payload := res.Result.(GoBackPayload)
	if payload.URL != "https://a.example" {
		t.Fatalf("go_back URL = %q; want %q", payload.URL, "https://a.example")
	}
}

func TestMaxTabsSurfacesResourceExhausted(t *testing.T) {
	f := newFixture(t, 1)
	f.mustNewTab(t, "")

	res := f.dispatcher.Call(context.Background(), ToolNewTab, Params{})
	if got := errKind(res); got != backend.KindResourceExhausted {
		t.Fatalf("error kind = %q; want %q", got, backend.KindResourceExhausted)
	}
}

func TestRunWorkflowUnconfigured(t *testing.T) {
	f := newFixture(t, 0)

	res := f.dispatcher.Call(context.Background(), ToolRunWorkflow, Params{"steps": []any{}})
	if got := errKind(res); got != backend.KindValidation {
		t.Fatalf("error kind = %q; want %q", got, backend.KindValidation)
	}
}

func TestConcurrentCallsOnDistinctTabs(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://page.example", []memory.Element{{Selector: "h1", Text: "x"}})

	tabs := make([]string, 8)
	for i := range tabs {
		tabs[i] = f.mustNewTab(t, "https://page.example")
	}

	var wg sync.WaitGroup
	for _, tabID := range tabs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				res := f.dispatcher.Call(context.Background(), ToolExtractData, Params{
					"tab_id":    id,
					"selectors": []any{"h1"},
				})
				if !res.OK {
					t.Errorf("extract_data on %s failed: %+v", id, res.Error)
					return
				}
			}
		}(tabID)
	}
	wg.Wait()
}

func TestConcurrentNavigationsOnOneTab(t *testing.T) {
	f := newFixture(t, 0)
	f.browser.Seed("https://page.example/0", nil)
	for w := 0; w < 4; w++ {
		for i := 0; i < 5; i++ {
			f.browser.Seed(fmt.Sprintf("https://page.example/%d-%d", w, i), nil)
		}
	}
	tabID := f.mustNewTab(t, "https://page.example/0")

	done := make(chan struct{})
	readerErr := make(chan error, 1)
	go func() {
		defer close(readerErr)
		for {
			select {
			case <-done:
				return
			default:
			}
			tab, err := f.tabs.Get(tabID)
			if err != nil {
				readerErr <- fmt.Errorf("Get() error = %v", err)
				return
			}
			if tab.CurrentURL != tab.History[len(tab.History)-1] {
				readerErr <- fmt.Errorf("CurrentURL = %q; want newest history entry %q",
					tab.CurrentURL, tab.History[len(tab.History)-1])
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				res := f.dispatcher.Call(context.Background(), ToolNavigatePage, Params{
					"tab_id": tabID,
					"url":    fmt.Sprintf("https://page.example/%d-%d", w, i),
				})
				if !res.OK {
					t.Errorf("navigate_page failed: %+v", res.Error)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(done)
	if err := <-readerErr; err != nil {
		t.Fatal(err)
	}

	tab, err := f.tabs.Get(tabID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(tab.History) != 21 {
		t.Fatalf("len(History) = %d; want 21", len(tab.History))
	}
	if tab.CurrentURL != tab.History[len(tab.History)-1] {
		t.Fatalf("CurrentURL = %q; want newest history entry %q",
			tab.CurrentURL, tab.History[len(tab.History)-1])
	}
}
