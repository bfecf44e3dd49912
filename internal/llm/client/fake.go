package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"adflow/internal/llm"
)

// FakeClient returns deterministic payloads per phase for offline runs and tests.
type FakeClient struct {
	noQuestions bool
	calls       atomic.Int64
}

type FakeOption func(*FakeClient)

// FakeWithoutQuestions makes the analysis phase return no questions.
func FakeWithoutQuestions() FakeOption {
	return func(f *FakeClient) { f.noQuestions = true }
}

func NewFakeClient(opts ...FakeOption) *FakeClient {
	f := &FakeClient{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Calls reports how many requests reached the client.
func (f *FakeClient) Calls() int64 { return f.calls.Load() }

func (f *FakeClient) Complete(ctx context.Context, prompt string, input any) (string, error) {
	f.calls.Add(1)
	return fmt.Sprintf("fake %s summary", llm.PhaseFrom(ctx)), nil
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls.Add(1)
	var obj any
	switch llm.PhaseFrom(ctx) {
	case llm.PhaseAnalyze:
		questions := []any{
			map[string]any{"id": "budget", "question": "What is your monthly budget?", "question_type": "number", "required": true},
			map[string]any{"id": "goals", "question": "What should the campaign achieve?", "question_type": "multiselect", "options": []string{"leads", "sales", "awareness"}},
		}
		if f.noQuestions {
			questions = []any{}
		}
		obj = map[string]any{
			"brief": map[string]any{
				"business_name":         "Fake Coffee",
				"business_description":  "fake roastery",
				"products_services":     []string{"beans", "drip bags"},
				"unique_selling_points": []string{"roasted daily"},
				"detected_niche":        "coffee",
				"detected_language":     "en",
			},
			"questions":            questions,
			"initial_observations": "fake analyze output",
		}
	case llm.PhaseStrategy:
		obj = map[string]any{
			"summary": "fake strategy",
			"platforms": []any{
				map[string]any{"platform": "yandex_direct", "enabled": true, "creatives_count": 1},
				map[string]any{"platform": "telegram_ads", "enabled": true, "creatives_count": 1},
			},
			"key_messages":  []string{"fresh coffee"},
			"tone_of_voice": "warm",
		}
	case llm.PhaseHypotheses:
		obj = map[string]any{
			"hypotheses": []any{
				map[string]any{"id": "h1", "name": "freshness", "description": "fresh sells", "target_audience": "office workers", "platform": "yandex_direct", "message_angle": "roasted today", "creatives_needed": 1},
				map[string]any{"id": "h2", "name": "price", "description": "price sells", "target_audience": "students", "platform": "telegram_ads", "message_angle": "cheaper than a cafe", "creatives_needed": 1},
			},
			"total_creatives": 2,
		}
	case llm.PhaseCopy:
		obj = map[string]any{
			"creatives": []any{
				map[string]any{"id": "c1", "hypothesis_id": "h1", "platform": "yandex_direct", "variant": "A",
					"yandex": map[string]any{"headline": "Coffee roasted today", "text": "Order fresh beans with free delivery"}},
				map[string]any{"id": "c2", "hypothesis_id": "h2", "platform": "telegram_ads", "variant": "A",
					"telegram": map[string]any{"text": "Better than a cafe, half the price", "button_text": "Order"}},
			},
		}
	case llm.PhaseDesign:
		obj = map[string]any{
			"specs": []any{
				map[string]any{"creative_id": "c1", "platform": "yandex_direct", "size": "1080x607", "headline": "Coffee roasted today", "style_hints": "warm brown"},
			},
		}
	case llm.PhaseReview:
		obj = map[string]any{"approved": true, "score": 9, "feedback": "fake review"}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}
