// Package ai wraps the chat-completion providers behind one small interface.
// The platform speaks the OpenAI wire protocol for its default upstreams, so
// any OpenAI-compatible endpoint works through the openai provider; Claude
// models go through the anthropic provider.
package ai

import (
	"context"
	"fmt"

	"github.com/oopzlab/oopzbot/pkg/config"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Provider produces a completion for a conversation.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ImageGenerator produces an image URL for a text prompt. Only providers
// with an images endpoint implement it.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds the configured provider.
func NewProvider(cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}
}
