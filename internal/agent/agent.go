package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adflow/internal/artifact"
	"adflow/internal/llm"
	"adflow/internal/types"
)

const (
	RoleProjectManager = "project_manager"
	RoleStrategist     = "strategist"
	RoleCopywriter     = "copywriter"
	RoleDesigner       = "designer"
)

// Request is the closed set of work kinds an agent can be handed.
type Request interface {
	isRequest()
	Kind() string
}

// AnalyzeRequest asks for a brief and client questions from an ingested source.
type AnalyzeRequest struct {
	Source types.SourceSummary
}

// CreateRequest asks for a fresh output of the Target type.
type CreateRequest struct {
	Target artifact.Type
	Input  StageInput
}

// ReviewRequest asks for a verdict on Output.
type ReviewRequest struct {
	Target   artifact.Type
	Output   json.RawMessage
	Criteria []string
	// Hints are defects already detected mechanically (e.g. limit breaches).
	Hints []string
	Input StageInput
}

// ReviseRequest asks for a new version of Previous that addresses Feedback.
type ReviseRequest struct {
	Target   artifact.Type
	Input    StageInput
	Previous json.RawMessage
	Feedback string
}

func (AnalyzeRequest) isRequest() {}
func (CreateRequest) isRequest()  {}
func (ReviewRequest) isRequest()  {}
func (ReviseRequest) isRequest()  {}

func (AnalyzeRequest) Kind() string { return "analyze" }
func (CreateRequest) Kind() string  { return "create" }
func (ReviewRequest) Kind() string  { return "review" }
func (ReviseRequest) Kind() string  { return "revise" }

// StageInput is the accepted context threaded from stage to stage.
type StageInput struct {
	ProjectID  string                `json:"project_id,omitempty"`
	URL        string                `json:"url,omitempty"`
	Brief      *types.Brief          `json:"brief,omitempty"`
	Interview  *types.Interview      `json:"interview,omitempty"`
	Settings   *types.Settings       `json:"settings,omitempty"`
	Strategy   *artifact.Strategy    `json:"strategy,omitempty"`
	Hypotheses *artifact.Hypotheses  `json:"hypotheses,omitempty"`
	Creatives  *artifact.CreativeSet `json:"creatives,omitempty"`
	// Instruction narrows a create request, e.g. to rewrite one creative.
	Instruction string         `json:"instruction,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Result is what every Execute call yields. Exactly one of Output and Err is set.
type Result struct {
	Output json.RawMessage
	Err    error
}

func (r Result) OK() bool { return r.Err == nil }

// Decode unmarshals a successful output into v.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	return json.Unmarshal(r.Output, v)
}

// Agent is one role of the team.
type Agent interface {
	Name() string
	Execute(ctx context.Context, req Request) Result
}

// GenerationError is a failed generation call or a crash inside the agent.
type GenerationError struct {
	Agent string
	Err   error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("%s: generation failed: %v", e.Agent, e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError is a reply that did not match the expected structure.
type ValidationError struct {
	Agent string
	Err   error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: invalid output: %v", e.Agent, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// UnsupportedRequestError is returned when a role is handed a kind it does not do.
type UnsupportedRequestError struct {
	Agent  string
	Kind   string
	Target artifact.Type
}

func (e *UnsupportedRequestError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: unsupported %s request for %s", e.Agent, e.Kind, e.Target)
	}
	return fmt.Sprintf("%s: unsupported %s request", e.Agent, e.Kind)
}

func unsupported(agent string, req Request, target artifact.Type) Result {
	return Result{Err: &UnsupportedRequestError{Agent: agent, Kind: req.Kind(), Target: target}}
}

// guard runs fn and folds its outcome, including panics, into a Result.
func guard(agent string, fn func() (any, error)) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &GenerationError{Agent: agent, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()
	out, err := fn()
	if err != nil {
		var sve *llm.SchemaValidationError
		if errors.As(err, &sve) {
			return Result{Err: &ValidationError{Agent: agent, Err: err}}
		}
		return Result{Err: &GenerationError{Agent: agent, Err: err}}
	}
	raw, err := artifact.EncodeContent(out)
	if err != nil {
		return Result{Err: &GenerationError{Agent: agent, Err: err}}
	}
	return Result{Output: raw}
}
