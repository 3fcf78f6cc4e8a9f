package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"contract-relay/internal/models"
)

// OpenAIProvider keeps the conversation client side, since chat completions
// are stateless.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	slots  *rateSlots
	logger *zap.Logger
}

func NewOpenAIProvider(cfg openai.ClientConfig, model string, concurrentReqs int, logger *zap.Logger) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		slots:  newRateSlots(concurrentReqs),
		logger: logger.Named("openai"),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) NewChat(ctx context.Context, history []models.ChatMessage) (ChatHandle, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return &openAIChat{provider: p, messages: msgs}, nil
}

type openAIChat struct {
	mu       sync.Mutex
	provider *OpenAIProvider
	messages []openai.ChatCompletionMessage
}

func (c *openAIChat) Send(ctx context.Context, prompt string) (string, error) {
	p := c.provider
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := p.slots.acquire(ctx); err != nil {
		return "", err
	}
	defer p.slots.release()

	msgs := append(c.messages[:len(c.messages):len(c.messages)], openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		p.logger.Warn("empty choices", zap.String("id", resp.ID))
		return "", ErrEmptyResponse
	}

	reply := resp.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyResponse
	}

	// Only successful exchanges become part of the conversation.
	c.messages = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	return reply, nil
}
