// Package agent assembles the tool dispatcher, workflow runner, and stores
// behind the HTTP service interface.
package agent

import (
	"context"

	"github.com/dgnsrekt/web_agent/internal/artifact"
	"github.com/dgnsrekt/web_agent/internal/dispatch"
	"github.com/dgnsrekt/web_agent/internal/events"
	"github.com/dgnsrekt/web_agent/internal/session"
	"github.com/dgnsrekt/web_agent/internal/workflow"
)

// Service wires the agent core together for the API layer.
type Service struct {
	dispatcher *dispatch.Dispatcher
	tabs       *session.Manager
	runner     *workflow.Runner
	artifacts  *artifact.Store
	broker     *events.Broker
}

func NewService(dispatcher *dispatch.Dispatcher, tabs *session.Manager, runner *workflow.Runner, artifacts *artifact.Store, broker *events.Broker) *Service {
	return &Service{
		dispatcher: dispatcher,
		tabs:       tabs,
		runner:     runner,
		artifacts:  artifacts,
		broker:     broker,
	}
}

// CallTool resolves the tool name and dispatches it. Unknown names come back
// in the same result envelope as any other tool failure.
func (s *Service) CallTool(ctx context.Context, name string, params map[string]any) dispatch.Result {
	tool, err := dispatch.ParseTool(name)
	if err != nil {
		return dispatch.ErrorResult(err)
	}
	return s.dispatcher.Call(ctx, tool, dispatch.Params(params))
}

func (s *Service) Tools() []dispatch.Tool {
	return dispatch.Catalogue()
}

func (s *Service) ListTabs(_ context.Context) []session.Summary {
	return s.tabs.List()
}

func (s *Service) RunWorkflow(ctx context.Context, params map[string]any) (workflow.RunResult, error) {
	result, err := s.runner.Execute(ctx, dispatch.Params(params))
	if err != nil {
		return workflow.RunResult{}, err
	}
	run, ok := result.(workflow.RunResult)
	if !ok {
		return workflow.RunResult{}, nil
	}
	return run, nil
}

func (s *Service) PresetNames() []string {
	return s.runner.PresetNames()
}

func (s *Service) ListArtifacts(_ context.Context) ([]artifact.Meta, error) {
	return s.artifacts.List()
}

func (s *Service) GetArtifact(_ context.Context, id string) (artifact.Meta, error) {
	return s.artifacts.Get(id)
}

func (s *Service) ReadArtifact(_ context.Context, id string) ([]byte, string, error) {
	return s.artifacts.Read(id)
}

func (s *Service) DeleteArtifact(_ context.Context, id string) error {
	return s.artifacts.Delete(id)
}

func (s *Service) SubscribeEvents() (int64, <-chan events.Event) {
	return s.broker.Subscribe()
}

func (s *Service) UnsubscribeEvents(id int64) {
	s.broker.Unsubscribe(id)
}
