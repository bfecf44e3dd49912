package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// LLMClient is the generation capability every role talks to.
// GenerateJSON asks the provider for a JSON document; Complete asks for
// free text. The prompt carries the role context, input is the request body.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Complete(ctx context.Context, prompt string, input any) (string, error)
	Close() error
}

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// FormatInput renders the request body the way providers append it to the prompt.
func FormatInput(prompt string, input any) string {
	if input == nil {
		return prompt
	}
	in, _ := json.MarshalIndent(input, "", "  ")
	return prompt + "\n\n[INPUT JSON]\n" + string(in)
}
