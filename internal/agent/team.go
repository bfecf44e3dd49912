package agent

import (
	"context"

	"go.uber.org/zap"

	"adflow/internal/artifact"
	"adflow/internal/llm"
)

// Manager analyzes, reviews and summarizes.
type Manager interface {
	Agent
	Summarize(ctx context.Context, in StageInput, banners *artifact.BannerSet) (string, error)
}

// Team is the set of roles one pipeline run works with.
type Team struct {
	Manager    Manager
	Strategist Agent
	Copywriter Agent
	Designer   Agent
	Prompts    *PromptTable
}

// NewTeam wires the four roles against one generation client.
func NewTeam(cli llm.LLMClient, prompts *PromptTable, renderer Renderer, log *zap.Logger) (*Team, error) {
	if prompts == nil {
		var err error
		if prompts, err = DefaultPrompts(); err != nil {
			return nil, err
		}
	}
	return &Team{
		Manager:    NewProjectManager(cli, prompts),
		Strategist: NewStrategist(cli, prompts),
		Copywriter: NewCopywriter(cli, prompts),
		Designer:   NewDesigner(cli, prompts, renderer, log),
		Prompts:    prompts,
	}, nil
}
