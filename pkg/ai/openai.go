package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/oopzlab/oopzbot/pkg/config"
)

// OpenAI talks to any OpenAI-compatible chat-completions endpoint,
// including the Doubao/Ark gateways the platform community runs.
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64

	imageModel     string
	imageSize      string
	imageWatermark bool
}

func NewOpenAI(cfg config.AIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// NewOpenAIImage builds a provider pointed at an images endpoint.
func NewOpenAIImage(cfg config.ImageConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	return &OpenAI{
		client:         openai.NewClient(opts...),
		imageModel:     cfg.Model,
		imageSize:      cfg.Size,
		imageWatermark: cfg.Watermark,
	}
}

func (p *OpenAI) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GenerateImage returns the URL of one generated image. Watermarking is a
// vendor extension, passed as an extra request field for endpoints that
// understand it.
func (p *OpenAI) GenerateImage(ctx context.Context, prompt string) (string, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(p.imageModel),
	}
	if p.imageSize != "" {
		params.Size = openai.ImageGenerateParamsSize(p.imageSize)
	}

	resp, err := p.client.Images.Generate(ctx, params,
		option.WithJSONSet("watermark", p.imageWatermark))
	if err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("image generation: no image in response")
	}
	return resp.Data[0].URL, nil
}
