package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/dgnsrekt/web_agent/internal/artifact"
	"github.com/dgnsrekt/web_agent/internal/backend"
)

type artifactIDInput struct {
	ArtifactID string `path:"artifact_id"`
}

func registerArtifactHandlers(api huma.API, svc Service) {
	type listArtifactsOutput struct {
		Body struct {
			Artifacts []artifact.Meta `json:"artifacts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-artifacts", Method: http.MethodGet, Path: "/api/v1/artifacts", Summary: "List artifacts, newest first", Tags: []string{"Artifacts"}},
		func(ctx context.Context, input *struct{}) (*listArtifactsOutput, error) {
			metas, err := svc.ListArtifacts(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listArtifactsOutput{}
			out.Body.Artifacts = metas
			return out, nil
		})

	type getArtifactOutput struct {
		Body artifact.Meta
	}
	huma.Register(api, huma.Operation{OperationID: "get-artifact-metadata", Method: http.MethodGet, Path: "/api/v1/artifacts/{artifact_id}/metadata", Summary: "Get artifact metadata", Tags: []string{"Artifacts"}},
		func(ctx context.Context, input *artifactIDInput) (*getArtifactOutput, error) {
			meta, err := svc.GetArtifact(ctx, input.ArtifactID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &getArtifactOutput{}
			out.Body = meta
			return out, nil
		})

	type deleteArtifactOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-artifact", Method: http.MethodDelete, Path: "/api/v1/artifacts/{artifact_id}", Summary: "Delete artifact", Tags: []string{"Artifacts"}},
		func(ctx context.Context, input *artifactIDInput) (*deleteArtifactOutput, error) {
			if err := svc.DeleteArtifact(ctx, input.ArtifactID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteArtifactOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}

// artifactContentHandler serves the raw artifact bytes outside huma so the
// response is the file itself, not a JSON wrapper.
func artifactContentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "artifact_id")
		data, contentType, err := svc.ReadArtifact(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			var coded *backend.CodedError
			if errors.As(err, &coded) {
				switch coded.Kind {
				case backend.KindNotFound:
					status = http.StatusNotFound
				case backend.KindValidation:
					status = http.StatusBadRequest
				}
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}
}
