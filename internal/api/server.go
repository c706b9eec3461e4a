package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/web_agent/internal/artifact"
	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/dgnsrekt/web_agent/internal/dispatch"
	"github.com/dgnsrekt/web_agent/internal/events"
	"github.com/dgnsrekt/web_agent/internal/session"
	"github.com/dgnsrekt/web_agent/internal/workflow"
)

// Service is everything the HTTP layer needs from the agent core.
type Service interface {
	CallTool(ctx context.Context, name string, params map[string]any) dispatch.Result
	Tools() []dispatch.Tool
	ListTabs(ctx context.Context) []session.Summary
	RunWorkflow(ctx context.Context, params map[string]any) (workflow.RunResult, error)
	PresetNames() []string
	ListArtifacts(ctx context.Context) ([]artifact.Meta, error)
	GetArtifact(ctx context.Context, id string) (artifact.Meta, error)
	ReadArtifact(ctx context.Context, id string) ([]byte, string, error)
	DeleteArtifact(ctx context.Context, id string) error
	SubscribeEvents() (int64, <-chan events.Event)
	UnsubscribeEvents(id int64)
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Web Agent API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(docsHTML))
	})
	router.Get("/api/v1/events", eventsHandler(svc))
	router.Get("/api/v1/artifacts/{artifact_id}/content", artifactContentHandler(svc))

	registerToolHandlers(api, svc)
	registerWorkflowHandlers(api, svc)
	registerArtifactHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *backend.CodedError
	if errors.As(err, &coded) {
		switch coded.Kind {
		case backend.KindValidation:
			return huma.Error400BadRequest(coded.Message)
		case backend.KindNotFound:
			return huma.Error404NotFound(coded.Message)
		case backend.KindAlreadyClosed, backend.KindNoHistory:
			return huma.Error409Conflict(coded.Message)
		case backend.KindSelectorNotFound:
			return huma.Error422UnprocessableEntity(coded.Message)
		case backend.KindResourceExhausted:
			return huma.Error429TooManyRequests(coded.Message)
		case backend.KindNavigationFailed, backend.KindBackend:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Kind, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
