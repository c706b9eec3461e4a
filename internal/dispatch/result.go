package dispatch

import (
	"errors"

	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/dgnsrekt/web_agent/internal/session"
)

// ToolError is the structured failure half of the uniform tool envelope.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the uniform tool-call outcome: exactly one of Result or Error is
// set, so clients distinguish success without parsing free text.
type Result struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ToolError `json:"error,omitempty"`
}

func successResult(payload any) Result {
	return Result{OK: true, Result: payload}
}

// ErrorResult folds an error into the uniform result envelope.
func ErrorResult(err error) Result {
	return errorResult(err)
}

func errorResult(err error) Result {
	var coded *backend.CodedError
	if errors.As(err, &coded) {
		return Result{OK: false, Error: &ToolError{Kind: coded.Kind, Message: coded.Message}}
	}
	return Result{OK: false, Error: &ToolError{Kind: backend.KindBackend, Message: err.Error()}}
}

// Tool-specific success payloads.

type NewTabPayload struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url,omitempty"`
}

type NavigatePayload struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

type FillPayload struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type ExtractPayload struct {
	Data backend.ExtractResult `json:"data"`
}

type ArtifactPayload struct {
	ArtifactID string `json:"artifact_id"`
	Kind       string `json:"kind"`
	Format     string `json:"format"`
	SizeBytes  int    `json:"size_bytes"`
}

type ClosePayload struct {
	TabID  string `json:"tab_id"`
	Status string `json:"status"`
}

type ListTabsPayload struct {
	Tabs []session.Summary `json:"tabs"`
}

type GoBackPayload struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}
