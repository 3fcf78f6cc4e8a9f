package models

import "github.com/google/uuid"

// WebSocket message types
const (
	EventValidationQueued    = "validation.queued"
	EventValidationStarted   = "validation.started"
	EventValidationCompleted = "validation.completed"
	EventValidationFailed    = "validation.failed"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ValidationEvent struct {
	ValidationID uuid.UUID `json:"validationId"`
	SessionID    string    `json:"sessionId"`
	Status       string    `json:"status"`
	Result       string    `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}
