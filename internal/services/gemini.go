package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"contract-relay/internal/models"
)

type GeminiProvider struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	slots     *rateSlots
	logger    *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, modelName string, concurrentReqs int, logger *zap.Logger, opts ...option.ClientOption) (*GeminiProvider, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	return &GeminiProvider{
		client:    client,
		model:     model,
		modelName: modelName,
		slots:     newRateSlots(concurrentReqs),
		logger:    logger.Named("gemini"),
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini:" + p.modelName
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) NewChat(ctx context.Context, history []models.ChatMessage) (ChatHandle, error) {
	cs := p.model.StartChat()
	cs.History = toGeminiHistory(history)
	return &geminiChat{session: cs, slots: p.slots, logger: p.logger}, nil
}

type geminiChat struct {
	// ChatSession appends to its History on every send.
	mu      sync.Mutex
	session *genai.ChatSession
	slots   *rateSlots
	logger  *zap.Logger
}

func (c *geminiChat) Send(ctx context.Context, prompt string) (string, error) {
	// Queue behind the session's own sends before taking a shared slot.
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.slots.acquire(ctx); err != nil {
		return "", err
	}
	defer c.slots.release()

	resp, err := c.session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			c.logger.Warn("Gemini stopped early",
				zap.Int("candidate", i),
				zap.String("finish_reason", cand.FinishReason.String()),
				zap.Int32("tokens", cand.TokenCount),
			)
		}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toGeminiHistory(history []models.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role != models.RoleModel {
			role = models.RoleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
