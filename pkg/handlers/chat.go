// Package handlers implements the bot's command handlers and the AI chat
// fallback. Every handler is a thin wrapper over a boundary client; the
// router treats them uniformly.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/oopzlab/oopzbot/pkg/ai"
	"github.com/oopzlab/oopzbot/pkg/events"
)

// ChatFallback answers @bot messages that carry no command, using the
// keyword table first and the AI provider second.
type ChatFallback struct {
	keywords     *KeywordStore
	provider     ai.Provider
	systemPrompt string
}

func NewChatFallback(keywords *KeywordStore, provider ai.Provider, systemPrompt string) *ChatFallback {
	return &ChatFallback{keywords: keywords, provider: provider, systemPrompt: systemPrompt}
}

func (c *ChatFallback) Reply(ctx context.Context, ev events.InboundEvent) (string, error) {
	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return "", nil
	}
	if c.keywords != nil {
		if reply, ok := c.keywords.Match(content); ok {
			return reply, nil
		}
	}
	if c.provider == nil {
		return "", nil
	}
	out, err := c.provider.Complete(ctx, []ai.Message{
		{Role: "system", Content: c.systemPrompt},
		{Role: "user", Content: content},
	})
	if err != nil {
		return "", fmt.Errorf("ai reply: %w", err)
	}
	return out, nil
}
