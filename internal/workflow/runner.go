package workflow

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/dgnsrekt/web_agent/internal/dispatch"
	"github.com/dgnsrekt/web_agent/internal/events"
)

// Step statuses.
const (
	StepSuccess = "SUCCESS"
	StepFailed  = "FAILED"
	StepSkipped = "SKIPPED"
)

// Overall run statuses.
const (
	RunCompleted = "COMPLETED"
	RunPartial   = "PARTIAL"
	RunAborted   = "ABORTED"
)

// Step is one (tool, params) pair of a workflow.
type Step struct {
	Tool   string         `json:"tool" yaml:"tool"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// StepResult is one executed (or skipped) step.
type StepResult struct {
	Index  int                   `json:"index"`
	Tool   string                `json:"tool"`
	Status string                `json:"status"`
	Result any                   `json:"result,omitempty"`
	Error  *dispatch.ToolError `json:"error,omitempty"`
	Reason string                `json:"reason,omitempty"`
}

// RunResult is the full ordered outcome of one workflow run. It is never
// truncated: callers always see every step.
type RunResult struct {
	Status    string       `json:"status"`
	Cancelled bool         `json:"cancelled,omitempty"`
	Steps     []StepResult `json:"steps"`
}

// stepRefPattern matches the explicit back-reference form "$N.tab_id", which
// resolves to the tab ID produced by an earlier new_tab step.
var stepRefPattern = regexp.MustCompile(`^\$(\d+)\.tab_id$`)

// Runner executes workflow steps strictly sequentially, threading tab state
// between steps through the dispatcher. It holds no locks of its own; each
// step acquires whatever per-tab locking its tool requires.
type Runner struct {
	dispatcher *dispatch.Dispatcher
	presets    *Library
	broker     *events.Broker

	// abortOnFailure switches the default continue-on-error policy to
	// stop-at-first-failure; remaining steps are then SKIPPED.
	abortOnFailure bool
}

// NewRunner creates a runner with the default continue-on-error policy.
func NewRunner(d *dispatch.Dispatcher) *Runner {
	return &Runner{dispatcher: d}
}

// SetPresets attaches a named-workflow library.
func (r *Runner) SetPresets(l *Library) { r.presets = l }

// SetEvents attaches the event broker for step progress notifications.
func (r *Runner) SetEvents(b *events.Broker) { r.broker = b }

// SetAbortOnFailure switches the default failure policy for runs that do not
// specify one explicitly.
func (r *Runner) SetAbortOnFailure(v bool) { r.abortOnFailure = v }

// PresetNames lists the configured preset workflow names.
func (r *Runner) PresetNames() []string {
	if r.presets == nil {
		return nil
	}
	return r.presets.Names()
}

// Execute satisfies dispatch.WorkflowExecutor: it decodes run_workflow params
// and runs the workflow.
func (r *Runner) Execute(ctx context.Context, params dispatch.Params) (any, error) {
	steps, abort, err := r.decodeParams(params)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, steps, abort), nil
}

func (r *Runner) decodeParams(params dispatch.Params) ([]Step, bool, error) {
	abort := r.abortOnFailure
	if raw, ok := params["abort_on_failure"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return nil, false, backend.NewError(backend.KindValidation, "param \"abort_on_failure\" must be a boolean", nil)
		}
		abort = b
	}

	if raw, ok := params["preset"]; ok && raw != nil {
		name, ok := raw.(string)
		if !ok || name == "" {
			return nil, false, backend.NewError(backend.KindValidation, "param \"preset\" must be a non-empty string", nil)
		}
		if r.presets == nil {
			return nil, false, backend.NewError(backend.KindValidation, "no workflow presets configured", nil)
		}
		preset, ok := r.presets.Get(name)
		if !ok {
			return nil, false, backend.NewError(backend.KindValidation, "unknown workflow preset: "+name, nil)
		}
		return preset.Steps, abort, nil
	}

	raw, ok := params["steps"]
	if !ok {
		return nil, false, backend.NewError(backend.KindValidation, "missing required param \"steps\"", nil)
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, false, backend.NewError(backend.KindValidation, "param \"steps\" must be a non-empty sequence", nil)
	}

	steps := make([]Step, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false, backend.NewError(backend.KindValidation,
				"step "+strconv.Itoa(i)+" must be an object with \"tool\" and \"params\"", nil)
		}
		tool, _ := m["tool"].(string)
		if tool == "" {
			return nil, false, backend.NewError(backend.KindValidation,
				"step "+strconv.Itoa(i)+" is missing \"tool\"", nil)
		}
		var stepParams map[string]any
		if rawParams, ok := m["params"]; ok && rawParams != nil {
			stepParams, ok = rawParams.(map[string]any)
			if !ok {
				return nil, false, backend.NewError(backend.KindValidation,
					"step "+strconv.Itoa(i)+": \"params\" must be a mapping", nil)
			}
		}
		steps = append(steps, Step{Tool: tool, Params: stepParams})
	}
	return steps, abort, nil
}

// Run executes the steps in order and aggregates their outcomes. A step
// failure is data, not control flow: subsequent steps still run under the
// default policy. Cancellation is observed at a checkpoint before each step;
// completed step results are always returned.
func (r *Runner) Run(ctx context.Context, steps []Step, abortOnFailure bool) RunResult {
	results := make([]StepResult, len(steps))
	createdTabs := make(map[int]string) // step index -> tab id from new_tab
	failedTabs := make(map[int]bool)    // new_tab steps that failed

	cancelled := false
	aborted := false

	for i, step := range steps {
		results[i] = StepResult{Index: i, Tool: step.Tool, Status: StepSkipped}

		if cancelled || aborted {
			results[i].Reason = skipReason(cancelled)
			continue
		}
		select {
		case <-ctx.Done():
			cancelled = true
			results[i].Reason = skipReason(true)
			slog.Info("workflow cancelled", "completed_steps", i, "total_steps", len(steps))
			continue
		default:
		}

		r.publishStep(events.TypeStepStarted, i, step.Tool, "", "")

		tool, err := dispatch.ParseTool(step.Tool)
		if err != nil {
			results[i] = failedStep(i, step.Tool, err)
			r.publishStep(events.TypeStepFinished, i, step.Tool, StepFailed, backend.KindOf(err))
			if abortOnFailure {
				aborted = true
			}
			continue
		}
		if tool == dispatch.ToolRunWorkflow {
			err := backend.NewError(backend.KindValidation, "workflows cannot nest run_workflow steps", nil)
			results[i] = failedStep(i, step.Tool, err)
			r.publishStep(events.TypeStepFinished, i, step.Tool, StepFailed, backend.KindOf(err))
			if abortOnFailure {
				aborted = true
			}
			continue
		}

		params, refErr, skip := resolveStepRefs(i, step.Params, createdTabs, failedTabs)
		if skip {
			results[i].Reason = "references a tab from a failed new_tab step"
			r.publishStep(events.TypeStepFinished, i, step.Tool, StepSkipped, "")
			continue
		}
		if refErr != nil {
			results[i] = failedStep(i, step.Tool, refErr)
			r.publishStep(events.TypeStepFinished, i, step.Tool, StepFailed, backend.KindOf(refErr))
			if abortOnFailure {
				aborted = true
			}
			continue
		}

		res := r.dispatcher.Call(ctx, tool, params)
		if res.OK {
			results[i] = StepResult{Index: i, Tool: step.Tool, Status: StepSuccess, Result: res.Result}
			if tool == dispatch.ToolNewTab {
				if payload, ok := res.Result.(dispatch.NewTabPayload); ok {
					createdTabs[i] = payload.TabID
				}
			}
			r.publishStep(events.TypeStepFinished, i, step.Tool, StepSuccess, "")
			continue
		}

		results[i] = StepResult{Index: i, Tool: step.Tool, Status: StepFailed, Error: res.Error}
		if tool == dispatch.ToolNewTab {
			failedTabs[i] = true
		}
		kind := ""
		if res.Error != nil {
			kind = res.Error.Kind
		}
		r.publishStep(events.TypeStepFinished, i, step.Tool, StepFailed, kind)
		if abortOnFailure {
			aborted = true
		}
	}

	out := RunResult{Steps: results, Cancelled: cancelled, Status: overallStatus(results, cancelled)}
	r.publishStep(events.TypeWorkflowDone, len(steps), "", out.Status, "")
	slog.Info("workflow finished", "status", out.Status, "steps", len(steps), "cancelled", cancelled)
	return out
}

func failedStep(i int, tool string, err error) StepResult {
	return StepResult{
		Index:  i,
		Tool:   tool,
		Status: StepFailed,
		Error:  &dispatch.ToolError{Kind: backend.KindOf(err), Message: backend.MessageOf(err)},
	}
}

func skipReason(cancelled bool) string {
	if cancelled {
		return "workflow cancelled"
	}
	return "aborted after earlier failure"
}

// resolveStepRefs substitutes "$N.tab_id" references with the tab ID produced
// by step N. A reference to a failed new_tab step makes the whole step
// SKIPPED; a reference to a step that never produced a tab is a validation
// failure.
func resolveStepRefs(index int, params map[string]any, createdTabs map[int]string, failedTabs map[int]bool) (dispatch.Params, error, bool) {
	if params == nil {
		return dispatch.Params{}, nil, false
	}
	out := make(dispatch.Params, len(params))
	for key, value := range params {
		s, ok := value.(string)
		if !ok {
			out[key] = value
			continue
		}
		m := stepRefPattern.FindStringSubmatch(s)
		if m == nil {
			out[key] = value
			continue
		}
		ref, err := strconv.Atoi(m[1])
		if err != nil || ref >= index {
			return nil, backend.NewError(backend.KindValidation,
				"step "+strconv.Itoa(index)+": reference "+s+" must point at an earlier step", nil), false
		}
		if failedTabs[ref] {
			return nil, nil, true
		}
		tabID, ok := createdTabs[ref]
		if !ok {
			return nil, backend.NewError(backend.KindValidation,
				"step "+strconv.Itoa(index)+": step "+m[1]+" did not produce a tab", nil), false
		}
		out[key] = tabID
	}
	return out, nil, false
}

// overallStatus folds step outcomes into the run status. Skipped steps count
// toward neither success nor failure.
func overallStatus(steps []StepResult, cancelled bool) string {
	if cancelled {
		return RunAborted
	}
	succeeded, failed := 0, 0
	for _, s := range steps {
		switch s.Status {
		case StepSuccess:
			succeeded++
		case StepFailed:
			failed++
		}
	}
	switch {
	case failed == 0 && succeeded > 0:
		return RunCompleted
	case failed > 0 && succeeded > 0:
		return RunPartial
	default:
		return RunAborted
	}
}

func (r *Runner) publishStep(eventType string, index int, tool, status, errorKind string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(events.Event{
		Type:      eventType,
		Tool:      tool,
		StepIndex: index,
		Status:    status,
		ErrorKind: errorKind,
	})
}
