package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contract-relay/internal/models"
)

type fakeCompletions struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	reply    string
	status   int
	// hold, when set, keeps requests whose last prompt starts with "hold"
	// open until it is closed.
	hold chan struct{}
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if n := len(req.Messages); f.hold != nil && n > 0 && strings.HasPrefix(req.Messages[n-1].Content, "hold") {
		select {
		case <-f.hold:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
		return
	}
	json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID: "chatcmpl-1",
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply},
		}},
	})
}

func newTestOpenAI(t *testing.T, fake *fakeCompletions) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAIProvider(cfg, "gpt-4o-mini", 2, zap.NewNop())
}

func TestOpenAIChat_KeepsConversation(t *testing.T) {
	fake := &fakeCompletions{reply: "Overall Result: Pass"}
	p := newTestOpenAI(t, fake)

	chat, err := p.NewChat(context.Background(), []models.ChatMessage{
		{Role: models.RoleUser, Content: "earlier prompt"},
		{Role: models.RoleModel, Content: "earlier verdict"},
	})
	require.NoError(t, err)

	reply, err := chat.Send(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "Overall Result: Pass", reply)

	_, err = chat.Send(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	first := fake.requests[0].Messages
	require.Len(t, first, 3)
	assert.Equal(t, openai.ChatMessageRoleAssistant, first[1].Role)
	assert.Equal(t, "first", first[2].Content)

	second := fake.requests[1].Messages
	require.Len(t, second, 5)
	assert.Equal(t, "Overall Result: Pass", second[3].Content)
	assert.Equal(t, "second", second[4].Content)
}

func TestOpenAIChat_FailedSendIsNotRemembered(t *testing.T) {
	fake := &fakeCompletions{status: http.StatusInternalServerError}
	p := newTestOpenAI(t, fake)

	chat, err := p.NewChat(context.Background(), nil)
	require.NoError(t, err)

	_, err = chat.Send(context.Background(), "first")
	require.Error(t, err)
	assert.Empty(t, chat.(*openAIChat).messages)
}

func TestOpenAIChat_EmptyReply(t *testing.T) {
	p := newTestOpenAI(t, &fakeCompletions{reply: "  "})

	chat, _ := p.NewChat(context.Background(), nil)
	_, err := chat.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestProviderNames(t *testing.T) {
	p := NewOpenAIProvider(openai.DefaultConfig("k"), "", 1, zap.NewNop())
	assert.Equal(t, "openai:"+openai.GPT4oMini, p.Name())
}

func (f *fakeCompletions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestOpenAIChat_QueuedSendDoesNotStarveOtherSessions(t *testing.T) {
	fake := &fakeCompletions{reply: "Overall Result: Pass", hold: make(chan struct{})}
	p := newTestOpenAI(t, fake) // two slots

	busy, err := p.NewChat(context.Background(), nil)
	require.NoError(t, err)
	other, err := p.NewChat(context.Background(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		busy.Send(context.Background(), "hold first")
	}()
	require.Eventually(t, func() bool { return fake.count() == 1 }, time.Second, 5*time.Millisecond)

	// Second send on the same session waits for the first one.
	wg.Add(1)
	go func() {
		defer wg.Done()
		busy.Send(context.Background(), "hold second")
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := other.Send(ctx, "validate")
	require.NoError(t, err)
	assert.Equal(t, "Overall Result: Pass", reply)

	close(fake.hold)
	wg.Wait()
}
