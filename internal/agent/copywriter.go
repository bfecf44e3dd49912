package agent

import (
	"context"
	"encoding/json"

	"adflow/internal/artifact"
	"adflow/internal/llm"
)

// Copywriter writes the ad texts.
type Copywriter struct {
	llm     llm.LLMClient
	prompts *PromptTable
}

func NewCopywriter(cli llm.LLMClient, prompts *PromptTable) *Copywriter {
	if prompts == nil {
		prompts = mustDefaultPrompts()
	}
	return &Copywriter{llm: cli, prompts: prompts}
}

func (a *Copywriter) Name() string { return RoleCopywriter }

func (a *Copywriter) Execute(ctx context.Context, req Request) Result {
	switch r := req.(type) {
	case CreateRequest:
		if r.Target != artifact.TypeCopy {
			return unsupported(a.Name(), r, r.Target)
		}
		if r.Input.Instruction != "" {
			// Refinement of a finished set: only the new creatives come back.
			return guard(a.Name(), func() (any, error) {
				return a.generate(ctx, "refine", map[string]any{
					"instruction": r.Input.Instruction,
					"creatives":   r.Input.Creatives,
					"extra":       r.Input.Extra,
					"brief":       r.Input.Brief,
					"strategy":    r.Input.Strategy,
				})
			})
		}
		return guard(a.Name(), func() (any, error) {
			return a.generate(ctx, "create", createInput(r.Input))
		})
	case ReviseRequest:
		if r.Target != artifact.TypeCopy {
			return unsupported(a.Name(), r, r.Target)
		}
		// A revision sees the same context as the create call it revises.
		input := createInput(r.Input)
		input["original"] = json.RawMessage(r.Previous)
		input["feedback"] = r.Feedback
		return guard(a.Name(), func() (any, error) {
			return a.generate(ctx, "revise", input)
		})
	case AnalyzeRequest:
		return unsupported(a.Name(), r, "")
	case ReviewRequest:
		return unsupported(a.Name(), r, r.Target)
	}
	return unsupported(a.Name(), req, "")
}

func createInput(in StageInput) map[string]any {
	return map[string]any{
		"hypotheses": in.Hypotheses,
		"brief":      in.Brief,
		"strategy":   in.Strategy,
	}
}

func (a *Copywriter) generate(ctx context.Context, task string, input any) (artifact.CreativeSet, error) {
	ctx = llm.WithPhase(ctx, llm.PhaseCopy)
	out, err := llm.GenerateStructured[artifact.CreativeSet](ctx, a.llm, a.prompts.Prompt(RoleCopywriter, task), input)
	if err != nil {
		return out, err
	}
	if out.Creatives == nil {
		out.Creatives = []artifact.Creative{}
	}
	out.Normalize()
	return out, nil
}
