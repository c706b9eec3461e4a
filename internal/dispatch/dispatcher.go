package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/web_agent/internal/artifact"
	"github.com/dgnsrekt/web_agent/internal/auditlog"
	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/dgnsrekt/web_agent/internal/events"
	"github.com/dgnsrekt/web_agent/internal/session"
	"github.com/google/uuid"
)

// WorkflowExecutor runs a multi-step workflow. The workflow package binds
// itself here so run_workflow stays part of the closed tool catalogue without
// an import cycle.
type WorkflowExecutor interface {
	Execute(ctx context.Context, params Params) (any, error)
}

// Dispatcher translates one (tool, params) pair into exactly one state
// transition against the tab registry and browser backend. Calls against one
// tab are serialized by that tab's lock for the full duration of the dispatch;
// calls against different tabs proceed concurrently.
type Dispatcher struct {
	tabs      *session.Manager
	browser   backend.Browser
	artifacts *artifact.Store

	workflow WorkflowExecutor
	audit    *auditlog.Writer
	broker   *events.Broker
}

// NewDispatcher wires a dispatcher over its collaborators. Audit log, event
// broker, and workflow executor are optional and bound separately.
func NewDispatcher(tabs *session.Manager, browser backend.Browser, artifacts *artifact.Store) *Dispatcher {
	return &Dispatcher{tabs: tabs, browser: browser, artifacts: artifacts}
}

// BindWorkflow attaches the run_workflow executor.
func (d *Dispatcher) BindWorkflow(w WorkflowExecutor) { d.workflow = w }

// SetAudit attaches the tool-call audit writer.
func (d *Dispatcher) SetAudit(w *auditlog.Writer) { d.audit = w }

// SetEvents attaches the event broker.
func (d *Dispatcher) SetEvents(b *events.Broker) { d.broker = b }

// Call executes one tool and returns the uniform envelope. Errors never
// escape unclassified; backend panics surface as BACKEND_ERROR.
func (d *Dispatcher) Call(ctx context.Context, tool Tool, params Params) Result {
	start := time.Now()
	if params == nil {
		params = Params{}
	}

	payload, err := d.dispatch(ctx, tool, params)

	tabID, _ := params.optionalString("tab_id")
	d.record(tool, tabID, err, time.Since(start))

	if err != nil {
		slog.Warn("tool call failed", "tool", tool, "tab_id", tabID,
			"kind", backend.KindOf(err), "error", err)
		return errorResult(err)
	}
	slog.Debug("tool call ok", "tool", tool, "tab_id", tabID,
		"duration_ms", time.Since(start).Milliseconds())
	return successResult(payload)
}

func (d *Dispatcher) dispatch(ctx context.Context, tool Tool, params Params) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool dispatch panic", "tool", tool, "panic", r)
			payload = nil
			err = backend.NewError(backend.KindBackend, fmt.Sprintf("panic in %s: %v", tool, r), nil)
		}
	}()

	switch tool {
	case ToolNewTab:
		return d.newTab(ctx, params)
	case ToolNavigatePage:
		return d.navigatePage(ctx, params)
	case ToolFillForm:
		return d.fillForm(ctx, params)
	case ToolClickElement:
		return d.clickElement(ctx, params)
	case ToolExtractData:
		return d.extractData(ctx, params)
	case ToolCaptureScreenshot:
		return d.captureScreenshot(ctx, params)
	case ToolGeneratePDF:
		return d.generatePDF(ctx, params)
	case ToolCloseTab:
		return d.closeTab(ctx, params)
	case ToolListTabs:
		return ListTabsPayload{Tabs: d.tabs.List()}, nil
	case ToolGoBack:
		return d.goBack(ctx, params)
	case ToolRunWorkflow:
		if d.workflow == nil {
			return nil, backend.NewError(backend.KindValidation, "workflow execution is not configured", nil)
		}
		return d.workflow.Execute(ctx, params)
	}
	return nil, backend.NewError(backend.KindValidation, "unknown tool: "+string(tool), nil)
}

func (d *Dispatcher) newTab(ctx context.Context, params Params) (any, error) {
	url, err := params.optionalString("url")
	if err != nil {
		return nil, err
	}
	if url != "" {
		if err := validateURL(url); err != nil {
			return nil, err
		}
	}

	pageID, err := d.browser.Open(ctx)
	if err != nil {
		return nil, backend.Classify(err, "backend open failed")
	}

	tab, err := d.tabs.Create(pageID)
	if err != nil {
		if closeErr := d.browser.Close(ctx, pageID); closeErr != nil {
			slog.Debug("backend page cleanup failed after rejected create", "error", closeErr)
		}
		return nil, err
	}

	if url != "" {
		// Either the whole call succeeds or no tab exists afterwards.
		if err := d.browser.Navigate(ctx, pageID, url); err != nil {
			d.unwindTab(ctx, tab.ID, pageID)
			return nil, backend.Classify(err, "navigation failed")
		}
		if err := d.tabs.RecordNavigation(tab.ID, url); err != nil {
			d.unwindTab(ctx, tab.ID, pageID)
			return nil, err
		}
	}

	return NewTabPayload{TabID: tab.ID, URL: url}, nil
}

func (d *Dispatcher) unwindTab(ctx context.Context, tabID string, pageID backend.PageID) {
	d.tabs.Remove(tabID)
	if err := d.browser.Close(ctx, pageID); err != nil {
		slog.Debug("backend page unwind close failed", "tab_id", tabID, "error", err)
	}
}

func (d *Dispatcher) navigatePage(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}
	url, err := params.requireString("url")
	if err != nil {
		return nil, err
	}
	if err := validateURL(url); err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	if err := d.browser.Navigate(ctx, tab.BackendID, url); err != nil {
		return nil, backend.Classify(err, "navigation failed")
	}
	if err := d.tabs.RecordNavigation(tabID, url); err != nil {
		return nil, err
	}
	return NavigatePayload{TabID: tabID, URL: url}, nil
}

func (d *Dispatcher) fillForm(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}
	values, err := params.requireStringMap("selectors_to_values")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	count, err := d.browser.Fill(ctx, tab.BackendID, values)
	if err != nil {
		return nil, backend.Classify(err, "form fill failed")
	}
	return FillPayload{Status: "filled", Count: count}, nil
}

func (d *Dispatcher) clickElement(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}
	selector, err := params.requireString("selector")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	result, err := d.browser.Click(ctx, tab.BackendID, selector)
	if err != nil {
		return nil, backend.Classify(err, "click failed")
	}
	if result.Navigated && result.URL != "" {
		if err := d.tabs.RecordNavigation(tabID, result.URL); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (d *Dispatcher) extractData(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}
	selectors, err := params.requireStringSlice("selectors")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	entries, err := d.browser.Extract(ctx, tab.BackendID, selectors)
	if err != nil {
		return nil, backend.Classify(err, "extraction failed")
	}
	return ExtractPayload{Data: backend.ExtractResult{Entries: entries}}, nil
}

func (d *Dispatcher) captureScreenshot(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}
	fullPage, err := params.optionalBool("full_page")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	data, err := d.browser.Screenshot(ctx, tab.BackendID, fullPage)
	if err != nil {
		return nil, backend.Classify(err, "screenshot failed")
	}

	meta := artifact.Meta{
		ID:        uuid.New().String(),
		TabID:     tabID,
		Kind:      artifact.KindScreenshot,
		Format:    "png",
		URL:       tab.CurrentURL,
		FullPage:  fullPage,
		SizeBytes: len(data),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.artifacts.Save(meta, data); err != nil {
		return nil, backend.NewError(backend.KindCaptureFailed, "save screenshot artifact", err)
	}
	if err := d.tabs.RecordArtifact(tabID, meta.ID); err != nil {
		return nil, err
	}
	return ArtifactPayload{ArtifactID: meta.ID, Kind: meta.Kind, Format: meta.Format, SizeBytes: meta.SizeBytes}, nil
}

func (d *Dispatcher) generatePDF(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}
	landscape, err := params.optionalBool("landscape")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	data, err := d.browser.PDF(ctx, tab.BackendID, landscape)
	if err != nil {
		return nil, backend.Classify(err, "pdf generation failed")
	}

	meta := artifact.Meta{
		ID:        uuid.New().String(),
		TabID:     tabID,
		Kind:      artifact.KindPDF,
		Format:    "pdf",
		URL:       tab.CurrentURL,
		Landscape: landscape,
		SizeBytes: len(data),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.artifacts.Save(meta, data); err != nil {
		return nil, backend.NewError(backend.KindGenerationFailed, "save pdf artifact", err)
	}
	if err := d.tabs.RecordArtifact(tabID, meta.ID); err != nil {
		return nil, err
	}
	return ArtifactPayload{ArtifactID: meta.ID, Kind: meta.Kind, Format: meta.Format, SizeBytes: meta.SizeBytes}, nil
}

func (d *Dispatcher) closeTab(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Close(tabID)
	if err != nil {
		return nil, err
	}
	// The tab is CLOSED regardless of backend cleanup: callers observe a
	// deterministic state transition even when the backend page is gone.
	if tab.BackendID != "" {
		if err := d.browser.Close(ctx, tab.BackendID); err != nil {
			slog.Warn("backend page close failed", "tab_id", tabID, "error", err)
		}
	}
	return ClosePayload{TabID: tabID, Status: "closed"}, nil
}

func (d *Dispatcher) goBack(ctx context.Context, params Params) (any, error) {
	tabID, err := params.requireString("tab_id")
	if err != nil {
		return nil, err
	}

	lock := d.tabs.TabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	tab, err := d.tabs.Get(tabID)
	if err != nil {
		return nil, err
	}
	if len(tab.History) < 2 {
		return nil, backend.NewError(backend.KindNoHistory, "no history to go back to", nil)
	}

	// Navigate the backend first so the history pop happens only after the
	// page actually moved; a backend failure leaves state untouched.
	prior := tab.History[len(tab.History)-2]
	if err := d.browser.Navigate(ctx, tab.BackendID, prior); err != nil {
		return nil, backend.Classify(err, "back navigation failed")
	}
	url, err := d.tabs.GoBack(tabID)
	if err != nil {
		return nil, err
	}
	return GoBackPayload{TabID: tabID, URL: url}, nil
}

func (d *Dispatcher) record(tool Tool, tabID string, err error, elapsed time.Duration) {
	status := "success"
	kind := ""
	message := ""
	if err != nil {
		status = "failed"
		kind = backend.KindOf(err)
		message = backend.MessageOf(err)
	}

	if d.audit != nil {
		_ = d.audit.Write(auditlog.Record{
			Time:         time.Now().UTC(),
			Tool:         string(tool),
			TabID:        tabID,
			OK:           err == nil,
			ErrorKind:    kind,
			ErrorMessage: message,
			DurationMS:   elapsed.Milliseconds(),
		})
	}
	if d.broker != nil {
		d.broker.Publish(events.Event{
			Type:      events.TypeToolCall,
			Tool:      string(tool),
			TabID:     tabID,
			Status:    status,
			ErrorKind: kind,
		})
	}
}
