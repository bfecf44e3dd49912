package agent

import (
	"context"
	"encoding/json"

	"adflow/internal/artifact"
	"adflow/internal/llm"
)

// Strategist produces the strategy and the hypotheses.
type Strategist struct {
	llm     llm.LLMClient
	prompts *PromptTable
}

func NewStrategist(cli llm.LLMClient, prompts *PromptTable) *Strategist {
	if prompts == nil {
		prompts = mustDefaultPrompts()
	}
	return &Strategist{llm: cli, prompts: prompts}
}

func (a *Strategist) Name() string { return RoleStrategist }

func (a *Strategist) Execute(ctx context.Context, req Request) Result {
	switch r := req.(type) {
	case CreateRequest:
		switch r.Target {
		case artifact.TypeStrategy:
			return guard(a.Name(), func() (any, error) {
				return a.strategy(ctx, a.prompts.Prompt(RoleStrategist, "strategy"), strategyInput(r.Input))
			})
		case artifact.TypeHypotheses:
			return guard(a.Name(), func() (any, error) {
				return a.hypotheses(ctx, a.prompts.Prompt(RoleStrategist, "hypotheses"), hypothesesInput(r.Input))
			})
		}
		return unsupported(a.Name(), r, r.Target)
	case ReviseRequest:
		prompt := a.prompts.Prompt(RoleStrategist, "revise")
		revise := func(input map[string]any) map[string]any {
			input["original"] = json.RawMessage(r.Previous)
			input["feedback"] = r.Feedback
			return input
		}
		switch r.Target {
		case artifact.TypeStrategy:
			input := revise(strategyInput(r.Input))
			return guard(a.Name(), func() (any, error) { return a.strategy(ctx, prompt, input) })
		case artifact.TypeHypotheses:
			input := revise(hypothesesInput(r.Input))
			return guard(a.Name(), func() (any, error) { return a.hypotheses(ctx, prompt, input) })
		}
		return unsupported(a.Name(), r, r.Target)
	case AnalyzeRequest:
		return unsupported(a.Name(), r, "")
	case ReviewRequest:
		return unsupported(a.Name(), r, r.Target)
	}
	return unsupported(a.Name(), req, "")
}

func strategyInput(in StageInput) map[string]any {
	return map[string]any{
		"brief":     in.Brief,
		"settings":  in.Settings,
		"interview": in.Interview,
	}
}

func hypothesesInput(in StageInput) map[string]any {
	return map[string]any{
		"strategy": in.Strategy,
		"brief":    in.Brief,
	}
}

func (a *Strategist) strategy(ctx context.Context, prompt string, input any) (artifact.Strategy, error) {
	ctx = llm.WithPhase(ctx, llm.PhaseStrategy)
	return llm.GenerateStructured[artifact.Strategy](ctx, a.llm, prompt, input)
}

func (a *Strategist) hypotheses(ctx context.Context, prompt string, input any) (artifact.Hypotheses, error) {
	ctx = llm.WithPhase(ctx, llm.PhaseHypotheses)
	out, err := llm.GenerateStructured[artifact.Hypotheses](ctx, a.llm, prompt, input)
	if err != nil {
		return out, err
	}
	if out.TotalCreatives == 0 {
		for _, h := range out.Hypotheses {
			out.TotalCreatives += h.CreativesNeeded
		}
	}
	return out, nil
}
