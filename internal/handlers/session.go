package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"contract-relay/internal/models"
)

type sessionEnder interface {
	EndSession(ctx context.Context, sessionID string) error
}

type tokenIssuer interface {
	Issue(sessionID string) (string, time.Time, error)
}

type SessionHandler struct {
	sessions sessionEnder
	tokens   tokenIssuer
	logger   *zap.Logger
}

func NewSessionHandler(sessions sessionEnder, tokens tokenIssuer, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens, logger: logger.Named("session")}
}

// Create allocates a session id and a token for the live updates socket.
// Clients may also pick their own session id and skip this call.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	token, expiresAt, err := h.tokens.Issue(sessionID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("Failed to create session", r))
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateSessionResponse{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("Valid sessionId is required", r))
		return
	}

	if err := h.sessions.EndSession(r.Context(), sessionID); err != nil {
		h.logger.Warn("failed to end session", zap.String("session_id", sessionID), zap.Error(err))
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended"})
}
