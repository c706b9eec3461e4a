// Package cdp drives real browser tabs over the Chrome DevTools Protocol
// using chromedp. Each page gets its own chromedp context derived from one
// shared browser context, so tabs share a browser process but fail
// independently.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/dgnsrekt/web_agent/internal/backend"
)

// Options configures the browser connection. RemoteURL attaches to an
// already-running browser's DevTools endpoint; when empty, a local browser is
// launched instead.
type Options struct {
	RemoteURL   string
	ExecPath    string
	Headless    bool
	EvalTimeout time.Duration
}

type pageCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Backend implements backend.Browser on top of chromedp.
type Backend struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	evalTimeout   time.Duration

	mu    sync.Mutex
	pages map[backend.PageID]*pageCtx
}

// evalEnvelope is the uniform result shape produced by every injected
// expression, so page-side failures arrive as data instead of exceptions.
type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// New connects to (or launches) a browser and verifies the connection by
// starting the initial browser context.
func New(opts Options) (*Backend, error) {
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = 30 * time.Second
	}

	b := &Backend{
		evalTimeout: opts.EvalTimeout,
		pages:       make(map[backend.PageID]*pageCtx),
	}

	if opts.RemoteURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("no-default-browser-check", true),
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}

	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.Shutdown()
		return nil, backend.NewError(backend.KindBackend, "starting browser failed", err)
	}

	slog.Info("cdp backend ready", "remote", opts.RemoteURL != "", "headless", opts.Headless)
	return b, nil
}

// Shutdown closes every page and the browser itself.
func (b *Backend) Shutdown() {
	b.mu.Lock()
	for id, p := range b.pages {
		p.cancel()
		delete(b.pages, id)
	}
	b.mu.Unlock()

	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

func (b *Backend) Open(ctx context.Context) (backend.PageID, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)

	// Running an empty task materialises the target.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return "", backend.NewError(backend.KindBackend, "opening browser tab failed", err)
	}

	id := backend.PageID(uuid.New().String())
	b.mu.Lock()
	b.pages[id] = &pageCtx{ctx: tabCtx, cancel: cancel}
	b.mu.Unlock()

	slog.Debug("cdp page opened", "page_id", id)
	return id, nil
}

func (b *Backend) Close(_ context.Context, id backend.PageID) error {
	b.mu.Lock()
	p, ok := b.pages[id]
	if ok {
		delete(b.pages, id)
	}
	b.mu.Unlock()

	if !ok {
		return backend.NewError(backend.KindBackend, "unknown browser page: "+string(id), nil)
	}
	p.cancel()
	slog.Debug("cdp page closed", "page_id", id)
	return nil
}

func (b *Backend) page(id backend.PageID) (*pageCtx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pages[id]
	if !ok {
		return nil, backend.NewError(backend.KindBackend, "unknown browser page: "+string(id), nil)
	}
	return p, nil
}

func (b *Backend) Navigate(ctx context.Context, id backend.PageID, url string) error {
	p, err := b.page(id)
	if err != nil {
		return err
	}

	runCtx, cancel := b.actionContext(ctx, p)
	defer cancel()

	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return backend.NewError(backend.KindNavigationFailed, "navigation to "+url+" failed", err)
	}
	return nil
}

func (b *Backend) Fill(ctx context.Context, id backend.PageID, fields map[string]string) (int, error) {
	p, err := b.page(id)
	if err != nil {
		return 0, err
	}

	// Selectors are applied in sorted order so the first missing one is
	// always the same regardless of map iteration.
	selectors := make([]string, 0, len(fields))
	for sel := range fields {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	pairs := make([][2]string, 0, len(selectors))
	for _, sel := range selectors {
		pairs = append(pairs, [2]string{sel, fields[sel]})
	}
	encoded, err := json.Marshal(pairs)
	if err != nil {
		return 0, backend.NewError(backend.KindBackend, "encoding form fields failed", err)
	}

	js := fmt.Sprintf(`(() => {
		const pairs = %s;
		let count = 0;
		for (const [selector, value] of pairs) {
			const el = document.querySelector(selector);
			if (!el) {
				return {ok: false, error_code: "SELECTOR_NOT_FOUND", error_message: "no element matches selector: " + selector};
			}
			if (el.isContentEditable) {
				el.textContent = value;
			} else {
				el.value = value;
			}
			el.dispatchEvent(new Event("input", {bubbles: true}));
			el.dispatchEvent(new Event("change", {bubbles: true}));
			count++;
		}
		return {ok: true, data: {count: count}};
	})()`, encoded)

	env, err := b.eval(ctx, p, js)
	if err != nil {
		return 0, err
	}
	var data struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, backend.NewError(backend.KindBackend, "decoding fill result failed", err)
	}
	return data.Count, nil
}

func (b *Backend) Click(ctx context.Context, id backend.PageID, selector string) (backend.ClickResult, error) {
	p, err := b.page(id)
	if err != nil {
		return backend.ClickResult{}, err
	}

	encoded, err := json.Marshal(selector)
	if err != nil {
		return backend.ClickResult{}, backend.NewError(backend.KindBackend, "encoding selector failed", err)
	}

	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) {
			return {ok: false, error_code: "SELECTOR_NOT_FOUND", error_message: "no element matches selector: " + %s};
		}
		el.click();
		return {ok: true, data: {url: window.location.href}};
	})()`, encoded, encoded)

	runCtx, cancel := b.actionContext(ctx, p)
	defer cancel()

	var before string
	if err := chromedp.Run(runCtx, chromedp.Location(&before)); err != nil {
		return backend.ClickResult{}, classify(err, "reading page location failed")
	}

	if _, err := b.eval(ctx, p, js); err != nil {
		return backend.ClickResult{}, err
	}

	// Clicks that trigger navigation do so asynchronously; give the page a
	// moment to commit before sampling the location again.
	var after string
	err = chromedp.Run(runCtx,
		chromedp.Sleep(250*time.Millisecond),
		chromedp.Location(&after),
	)
	if err != nil {
		return backend.ClickResult{}, classify(err, "reading page location failed")
	}

	return backend.ClickResult{
		Clicked:   true,
		Navigated: after != before,
		URL:       after,
	}, nil
}

func (b *Backend) Extract(ctx context.Context, id backend.PageID, selectors []string) ([]backend.ExtractEntry, error) {
	p, err := b.page(id)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(selectors)
	if err != nil {
		return nil, backend.NewError(backend.KindBackend, "encoding selectors failed", err)
	}

	js := fmt.Sprintf(`(() => {
		const selectors = %s;
		const entries = [];
		for (const selector of selectors) {
			let nodes;
			try {
				nodes = document.querySelectorAll(selector);
			} catch (e) {
				return {ok: false, error_code: "VALIDATION_ERROR", error_message: "invalid selector: " + selector};
			}
			const matches = [];
			for (const node of nodes) {
				matches.push((node.textContent || "").trim());
			}
			entries.push({selector: selector, matches: matches});
		}
		return {ok: true, data: {entries: entries}};
	})()`, encoded)

	env, err := b.eval(ctx, p, js)
	if err != nil {
		return nil, err
	}
	var data struct {
		Entries []backend.ExtractEntry `json:"entries"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, backend.NewError(backend.KindBackend, "decoding extract result failed", err)
	}
	for i := range data.Entries {
		if data.Entries[i].Matches == nil {
			data.Entries[i].Matches = []string{}
		}
	}
	return data.Entries, nil
}

func (b *Backend) Screenshot(ctx context.Context, id backend.PageID, fullPage bool) ([]byte, error) {
	p, err := b.page(id)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := b.actionContext(ctx, p)
	defer cancel()

	var buf []byte
	if fullPage {
		err = chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 100))
	} else {
		err = chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf))
	}
	if err != nil {
		return nil, backend.NewError(backend.KindCaptureFailed, "capturing screenshot failed", err)
	}
	return buf, nil
}

func (b *Backend) PDF(ctx context.Context, id backend.PageID, landscape bool) ([]byte, error) {
	p, err := b.page(id)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := b.actionContext(ctx, p)
	defer cancel()

	var buf []byte
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().
			WithLandscape(landscape).
			WithPrintBackground(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, backend.NewError(backend.KindGenerationFailed, "rendering pdf failed", err)
	}
	return buf, nil
}

// actionContext bounds a page action by both the caller's context and the
// configured evaluation timeout, while still running on the tab's own
// chromedp context.
func (b *Backend) actionContext(ctx context.Context, p *pageCtx) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.ctx, b.evalTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// eval runs an envelope-shaped expression on the page and surfaces page-side
// error codes as coded errors.
func (b *Backend) eval(ctx context.Context, p *pageCtx, js string) (evalEnvelope, error) {
	runCtx, cancel := b.actionContext(ctx, p)
	defer cancel()

	var env evalEnvelope
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &env)); err != nil {
		return evalEnvelope{}, classify(err, "page evaluation failed")
	}
	if !env.OK {
		kind := kindForCode(env.ErrorCode)
		msg := env.ErrorMessage
		if msg == "" {
			msg = "page evaluation reported failure"
		}
		return evalEnvelope{}, backend.NewError(kind, msg, nil)
	}
	return env, nil
}

func kindForCode(code string) string {
	switch code {
	case backend.KindSelectorNotFound, backend.KindValidation, backend.KindNavigationFailed:
		return code
	default:
		return backend.KindBackend
	}
}

// classify wraps transport and timeout failures as backend errors with a
// stable message.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	s := err.Error()
	if strings.Contains(s, "context deadline exceeded") {
		return backend.NewError(backend.KindBackend, msg+": timed out", err)
	}
	return backend.NewError(backend.KindBackend, msg, err)
}
