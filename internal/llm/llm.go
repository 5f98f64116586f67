// Package llm talks to the generative AI backend. Every backend turns a
// prompt plus an optional binary payload into generated text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"digestbot/internal/config"
	"digestbot/pkg/model"
)

var (
	// ErrEmptyResponse means the backend answered without any text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrMediaUnsupported means the backend cannot consume the payload type.
	ErrMediaUnsupported = errors.New("media type not supported by backend")
)

// Request is one generation call
type Request struct {
	Prompt    string
	MaxTokens int
	Media     *model.Media
}

// Generator is implemented by every AI backend
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// defaultOpenAIModel replaces the Gemini default model id when the OpenAI
// backend is selected without AI_MODEL
const defaultOpenAIModel = "gpt-4o-mini"

// New builds the backend selected in cfg, wrapped with retries and a
// circuit breaker.
func New(ctx context.Context, cfg *config.Config) (Generator, error) {
	var (
		backend Generator
		err     error
	)

	switch cfg.AI.Backend {
	case config.BackendGemini:
		backend, err = NewGemini(ctx, cfg.AI.GeminiAPIKey, cfg.AI.Model)
	case config.BackendOpenAI:
		modelName := cfg.AI.Model
		if strings.HasPrefix(modelName, "gemini") {
			modelName = defaultOpenAIModel
		}
		backend = NewOpenAI(cfg.AI.OpenAIAPIKey, modelName)
	default:
		return nil, fmt.Errorf("unknown AI backend %q", cfg.AI.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewResilient(backend, ResilienceOptions{
		Timeout:         cfg.AI.Timeout,
		MaxAttempts:     cfg.AI.MaxAttempts,
		BreakerFailures: cfg.AI.BreakerFailures,
		BreakerCooldown: cfg.AI.BreakerCooldown,
	}), nil
}
