package client

import (
	"context"
	"fmt"
	"strings"

	"adflow/internal/llm"
)

type Config struct {
	Provider  string // gemini|groq|fake
	Model     string
	GeminiKey string
	GroqKey   string
}

// New builds the provider named in cfg. An empty provider picks the first
// one with credentials and falls back to the fake client.
func New(ctx context.Context, cfg Config) (llm.LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		switch {
		case cfg.GeminiKey != "":
			provider = "gemini"
		case cfg.GroqKey != "":
			provider = "groq"
		default:
			provider = "fake"
		}
	}
	switch provider {
	case "gemini":
		return NewGeminiClient(ctx, cfg.GeminiKey, cfg.Model)
	case "groq":
		return NewGroqClient(cfg.GroqKey, cfg.Model)
	case "fake":
		return NewFakeClient(), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
