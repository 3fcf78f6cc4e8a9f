package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"contract-relay/internal/handlers"
	"contract-relay/internal/middleware"
	"contract-relay/internal/models"
	"contract-relay/internal/services"
	"contract-relay/internal/websocket"
)

type echoChat struct{}

func (echoChat) Send(ctx context.Context, prompt string) (string, error) {
	return "Overall Result: Pass", nil
}

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }
func (echoProvider) Close() error { return nil }
func (echoProvider) NewChat(ctx context.Context, history []models.ChatMessage) (services.ChatHandle, error) {
	return echoChat{}, nil
}

func newTestRouter(t *testing.T, limit int) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	tokens := middleware.NewSessionTokens("test-secret", time.Hour)
	limiter := middleware.NewRateLimiter(limit, time.Minute)
	t.Cleanup(limiter.Stop)

	svc := services.NewValidationService(services.ValidationDeps{Provider: echoProvider{}}, services.ValidationOptions{})
	hub := websocket.NewHub(nil, logger)

	return New(
		tokens,
		limiter,
		handlers.NewContractHandler(svc, logger),
		handlers.NewSessionHandler(svc, tokens, logger),
		hub,
		[]string{"*"},
	)
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, 30)

	tests := []struct {
		method string
		target string
		body   string
		status int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodPost, "/api/gpt/sessions", "", http.StatusCreated},
		{http.MethodDelete, "/api/gpt/sessions/abc", "", http.StatusOK},
		{http.MethodPost, "/api/gpt/contract/validate", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/gpt/contract/check", `{"apiResponse":{},"expectedContract":[]}`, http.StatusOK},
		{http.MethodGet, "/api/gpt/ws", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/gpt/contract/validations?sessionId=test-session-123", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/gpt/contract/validations/" + "00000000-0000-0000-0000-000000000000", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/gpt/unknown", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Errorf("%s %s: expected status %d, got %d", tc.method, tc.target, tc.status, rr.Code)
		}
	}
}

func TestRouter_ValidateEndToEnd(t *testing.T) {
	r := newTestRouter(t, 30)

	body := `{"sessionId":"test-session-123","apiResponse":{"id":1},"expectedContract":[{"field":"id","type":"number"}],"apiEndpoint":"/products/1","httpMethod":"GET"}`
	req := httptest.NewRequest(http.MethodPost, "/api/gpt/contract/validate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp models.ValidateContractResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.ValidationResult != "Overall Result: Pass" {
		t.Errorf("unexpected result %q", resp.ValidationResult)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
}

func TestRouter_ValidateIsRateLimited(t *testing.T) {
	r := newTestRouter(t, 1)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/gpt/contract/validate", strings.NewReader(`{}`))
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send(); code != http.StatusBadRequest {
		t.Fatalf("first request: expected %d, got %d", http.StatusBadRequest, code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected %d, got %d", http.StatusTooManyRequests, code)
	}
}
