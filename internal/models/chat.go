package models

import "time"

// ChatMessage is one turn of a session's conversation with the model.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type CreateSessionResponse struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
