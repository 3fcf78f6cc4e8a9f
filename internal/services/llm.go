package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contract-relay/internal/models"
)

// ErrEmptyResponse is returned when the model answers with no text, which
// usually means the reply was blocked.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ChatHandle is one conversation with the model. Turns sent through the same
// handle share context.
type ChatHandle interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// LLMProvider opens conversations with a hosted model.
type LLMProvider interface {
	Name() string
	// NewChat starts a conversation seeded with earlier turns.
	NewChat(ctx context.Context, history []models.ChatMessage) (ChatHandle, error)
	Close() error
}

// rateSlots is a token bucket shared by every handle of a provider.
type rateSlots struct {
	ch      chan struct{}
	maxWait time.Duration
}

func newRateSlots(n int) *rateSlots {
	if n < 1 {
		n = 1
	}
	ch := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		ch <- struct{}{}
	}
	return &rateSlots{ch: ch, maxWait: 5 * time.Minute}
}

// acquire blocks until a slot is available
func (r *rateSlots) acquire(ctx context.Context) error {
	timer := time.NewTimer(r.maxWait)
	defer timer.Stop()

	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout waiting for model rate slot")
	}
}

func (r *rateSlots) release() {
	r.ch <- struct{}{}
}
