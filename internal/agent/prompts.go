package agent

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"adflow/internal/artifact"
)

//go:embed prompts.yaml
var promptsYAML []byte

type rolePrompts struct {
	System string            `yaml:"system"`
	Tasks  map[string]string `yaml:"tasks"`
}

// PromptTable holds the role prompts and the per-stage review criteria.
type PromptTable struct {
	Roles         map[string]rolePrompts `yaml:"roles"`
	StageCriteria map[string][]string    `yaml:"criteria"`
}

var (
	defaultTable     *PromptTable
	defaultTableErr  error
	defaultTableOnce sync.Once
)

// DefaultPrompts returns the prompt table baked into the binary.
func DefaultPrompts() (*PromptTable, error) {
	defaultTableOnce.Do(func() {
		defaultTable, defaultTableErr = ParsePrompts(promptsYAML)
	})
	return defaultTable, defaultTableErr
}

func mustDefaultPrompts() *PromptTable {
	t, err := DefaultPrompts()
	if err != nil {
		panic(err)
	}
	return t
}

// ParsePrompts decodes a prompt table, e.g. an operator override file.
func ParsePrompts(data []byte) (*PromptTable, error) {
	var t PromptTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	for _, role := range []string{RoleProjectManager, RoleStrategist, RoleCopywriter, RoleDesigner} {
		if _, ok := t.Roles[role]; !ok {
			return nil, fmt.Errorf("parse prompts: role %q missing", role)
		}
	}
	return &t, nil
}

// Prompt joins a role's system context with one of its task prompts.
func (t *PromptTable) Prompt(role, task string) string {
	r := t.Roles[role]
	return r.System + "\n" + r.Tasks[task]
}

// Criteria returns the review criteria for a stage output.
func (t *PromptTable) Criteria(typ artifact.Type) []string {
	c := t.StageCriteria[string(typ)]
	if len(c) == 0 {
		return []string{"Overall quality and completeness"}
	}
	return append([]string(nil), c...)
}
