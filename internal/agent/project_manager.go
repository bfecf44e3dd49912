package agent

import (
	"context"
	"encoding/json"
	"strings"

	"adflow/internal/artifact"
	"adflow/internal/llm"
)

// ProjectManager analyzes the source, reviews every stage and writes the
// final summary.
type ProjectManager struct {
	llm     llm.LLMClient
	prompts *PromptTable
}

func NewProjectManager(cli llm.LLMClient, prompts *PromptTable) *ProjectManager {
	if prompts == nil {
		prompts = mustDefaultPrompts()
	}
	return &ProjectManager{llm: cli, prompts: prompts}
}

func (a *ProjectManager) Name() string { return RoleProjectManager }

func (a *ProjectManager) Execute(ctx context.Context, req Request) Result {
	switch r := req.(type) {
	case AnalyzeRequest:
		return guard(a.Name(), func() (any, error) {
			ctx := llm.WithPhase(ctx, llm.PhaseAnalyze)
			out, err := llm.GenerateStructured[artifact.Analysis](ctx, a.llm, a.prompts.Prompt(RoleProjectManager, "analyze"), map[string]any{
				"parsed_data": r.Source,
			})
			if err != nil {
				return nil, err
			}
			if out.Questions == nil {
				out.Questions = []artifact.Question{}
			}
			if out.Brief.TargetURL == "" {
				out.Brief.TargetURL = r.Source.URL
			}
			return out, nil
		})
	case ReviewRequest:
		return guard(a.Name(), func() (any, error) {
			ctx := llm.WithPhase(ctx, llm.PhaseReview)
			criteria := r.Criteria
			if len(criteria) == 0 {
				criteria = a.prompts.Criteria(r.Target)
			}
			out, err := llm.GenerateStructured[artifact.Review](ctx, a.llm, a.prompts.Prompt(RoleProjectManager, "review"), map[string]any{
				"work_type":    r.Target,
				"content":      json.RawMessage(r.Output),
				"criteria":     criteria,
				"known_issues": r.Hints,
				"brief":        r.Input.Brief,
			})
			if err != nil {
				return nil, err
			}
			return out.Clamp(), nil
		})
	case CreateRequest:
		return unsupported(a.Name(), r, r.Target)
	case ReviseRequest:
		return unsupported(a.Name(), r, r.Target)
	}
	return unsupported(a.Name(), req, "")
}

// Summarize writes the client-facing summary of a finished package.
func (a *ProjectManager) Summarize(ctx context.Context, in StageInput, banners *artifact.BannerSet) (string, error) {
	ctx = llm.WithPhase(ctx, llm.PhaseSummary)
	payload := map[string]any{"project": in}
	if banners != nil {
		payload["banners_count"] = banners.TotalCount
	}
	out, err := a.llm.Complete(ctx, a.prompts.Prompt(RoleProjectManager, "summary"), payload)
	if err != nil {
		return "", &GenerationError{Agent: a.Name(), Err: err}
	}
	return strings.TrimSpace(out), nil
}
