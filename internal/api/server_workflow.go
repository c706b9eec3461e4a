package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/web_agent/internal/workflow"
)

func registerWorkflowHandlers(api huma.API, svc Service) {
	type runInput struct {
		Body struct {
			Steps          []map[string]any `json:"steps,omitempty" doc:"Inline workflow steps, each {tool, params}"`
			Preset         string           `json:"preset,omitempty" doc:"Name of a preset workflow to run instead of inline steps"`
			AbortOnFailure *bool            `json:"abort_on_failure,omitempty" doc:"Stop at the first failed step instead of continuing"`
		}
	}
	type runOutput struct {
		Body workflow.RunResult
	}
	huma.Register(api, huma.Operation{OperationID: "run-workflow", Method: http.MethodPost, Path: "/api/v1/workflows/run", Summary: "Run a workflow", Tags: []string{"Workflows"}},
		func(ctx context.Context, input *runInput) (*runOutput, error) {
			params := map[string]any{}
			if len(input.Body.Steps) > 0 {
				steps := make([]any, len(input.Body.Steps))
				for i, s := range input.Body.Steps {
					steps[i] = s
				}
				params["steps"] = steps
			}
			if input.Body.Preset != "" {
				params["preset"] = input.Body.Preset
			}
			if input.Body.AbortOnFailure != nil {
				params["abort_on_failure"] = *input.Body.AbortOnFailure
			}

			result, err := svc.RunWorkflow(ctx, params)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &runOutput{}
			out.Body = result
			return out, nil
		})

	type presetListOutput struct {
		Body struct {
			Presets []string `json:"presets"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-workflow-presets", Method: http.MethodGet, Path: "/api/v1/workflows/presets", Summary: "List preset workflow names", Tags: []string{"Workflows"}},
		func(ctx context.Context, input *struct{}) (*presetListOutput, error) {
			out := &presetListOutput{}
			out.Body.Presets = svc.PresetNames()
			return out, nil
		})
}
