package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/web_agent/internal/dispatch"
	"github.com/dgnsrekt/web_agent/internal/session"
)

func registerToolHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type toolListOutput struct {
		Body struct {
			Tools []dispatch.Tool `json:"tools"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tools", Method: http.MethodGet, Path: "/api/v1/tools", Summary: "List available tools", Tags: []string{"Tools"}},
		func(ctx context.Context, input *struct{}) (*toolListOutput, error) {
			out := &toolListOutput{}
			out.Body.Tools = svc.Tools()
			return out, nil
		})

	type toolCallInput struct {
		Body struct {
			Tool   string         `json:"tool" doc:"Tool name, e.g. new_tab or navigate_page"`
			Params map[string]any `json:"params,omitempty" doc:"Tool parameters"`
		}
	}
	type toolCallOutput struct {
		Body dispatch.Result
	}
	// Tool failures are data: the call always answers 200 with the result
	// envelope, and ok=false carries the error kind and message.
	huma.Register(api, huma.Operation{OperationID: "call-tool", Method: http.MethodPost, Path: "/api/v1/tools/call", Summary: "Invoke a tool", Tags: []string{"Tools"}},
		func(ctx context.Context, input *toolCallInput) (*toolCallOutput, error) {
			out := &toolCallOutput{}
			out.Body = svc.CallTool(ctx, input.Body.Tool, input.Body.Params)
			return out, nil
		})

	type tabListOutput struct {
		Body struct {
			Tabs []session.Summary `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tabs in creation order", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabListOutput, error) {
			out := &tabListOutput{}
			out.Body.Tabs = svc.ListTabs(ctx)
			return out, nil
		})
}
