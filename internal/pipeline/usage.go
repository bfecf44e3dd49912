package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"adflow/internal/llm"
)

// LLMUsage counts the model requests issued on behalf of one project.
type LLMUsage struct {
	Calls     map[string]int `json:"calls"`
	Failures  int            `json:"failures"`
	LastPhase string         `json:"last_phase,omitempty"`
}

type usageTracker struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *LLMUsage]
}

func newUsageTracker(size int) (*usageTracker, error) {
	c, err := lru.New[string, *LLMUsage](size)
	if err != nil {
		return nil, err
	}
	return &usageTracker{entries: c}, nil
}

func (t *usageTracker) record(projectID, phase string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.entries.Get(projectID)
	if !ok {
		u = &LLMUsage{Calls: map[string]int{}}
		t.entries.Add(projectID, u)
	}
	if failed {
		u.Failures++
		return
	}
	u.Calls[phase]++
	u.LastPhase = phase
}

func (t *usageTracker) get(projectID string) (LLMUsage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.entries.Get(projectID)
	if !ok {
		return LLMUsage{}, false
	}
	out := LLMUsage{Calls: make(map[string]int, len(u.Calls)), Failures: u.Failures, LastPhase: u.LastPhase}
	for k, v := range u.Calls {
		out.Calls[k] = v
	}
	return out, true
}

// usageHook is the llm.PromptHook attached to every request a project's run
// or refinement makes.
type usageHook struct {
	projectID string
	tracker   *usageTracker
	log       *zap.Logger
}

func (h usageHook) Before(_ context.Context, phase, prompt string, input any) {
	h.tracker.record(h.projectID, phase, false)
	h.log.Debug("llm request",
		zap.String("project_id", h.projectID),
		zap.String("phase", phase),
		zap.Int("bytes", len(llm.FormatInput(prompt, input))))
}

func (h usageHook) After(_ context.Context, phase string, raw json.RawMessage, err error) {
	if err != nil {
		h.tracker.record(h.projectID, phase, true)
		h.log.Debug("llm request failed", zap.String("project_id", h.projectID), zap.String("phase", phase), zap.Error(err))
		return
	}
	h.log.Debug("llm response", zap.String("project_id", h.projectID), zap.String("phase", phase), zap.Int("bytes", len(raw)))
}

// traced tags ctx so LLM requests made under it are counted for projectID.
func (p *Pipeline) traced(ctx context.Context, projectID string) context.Context {
	return llm.WithPromptHook(ctx, usageHook{projectID: projectID, tracker: p.usage, log: p.log})
}

// LLMUsage reports the model requests made for projectID since the process
// started. Only clients wrapped with llm.WithHooks are counted.
func (p *Pipeline) LLMUsage(projectID string) (LLMUsage, bool) {
	return p.usage.get(projectID)
}
