package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ValidationQueued    = "queued"
	ValidationRunning   = "running"
	ValidationCompleted = "completed"
	ValidationFailed    = "failed"
)

// ValidateContractRequest is the relay payload as received. Fields stay raw so
// the service can tell a missing field from one of the wrong JSON type.
type ValidateContractRequest struct {
	SessionID        json.RawMessage `json:"sessionId"`
	APIResponse      json.RawMessage `json:"apiResponse"`
	ExpectedContract json.RawMessage `json:"expectedContract"`
	APIEndpoint      json.RawMessage `json:"apiEndpoint"`
	HTTPMethod       json.RawMessage `json:"httpMethod"`
	RequestBody      json.RawMessage `json:"requestBody,omitempty"`
}

// ValidationInput is a ValidateContractRequest that passed presence and type
// checks.
type ValidationInput struct {
	SessionID        string          `json:"sessionId"`
	APIResponse      json.RawMessage `json:"apiResponse"`
	ExpectedContract json.RawMessage `json:"expectedContract"`
	APIEndpoint      string          `json:"apiEndpoint"`
	HTTPMethod       string          `json:"httpMethod"`
	RequestBody      json.RawMessage `json:"requestBody,omitempty"`
}

type ValidateContractResponse struct {
	ValidationResult string     `json:"validationResult"`
	ValidationID     *uuid.UUID `json:"validationId,omitempty"`
}

type QueuedValidationResponse struct {
	ValidationID uuid.UUID `json:"validationId"`
	Status       string    `json:"status"`
}

// Validation is one relay call as recorded in the validation history.
type Validation struct {
	ID                  uuid.UUID       `json:"id"`
	SessionID           string          `json:"sessionId"`
	APIEndpoint         string          `json:"apiEndpoint"`
	HTTPMethod          string          `json:"httpMethod"`
	RequestBody         json.RawMessage `json:"requestBody,omitempty"`
	APIResponse         json.RawMessage `json:"apiResponse"`
	ExpectedContract    json.RawMessage `json:"expectedContract"`
	ContractFingerprint *string         `json:"contractFingerprint,omitempty"`
	Provider            string          `json:"provider"`
	Status              string          `json:"status"`
	Result              *string         `json:"result,omitempty"`
	ErrorMessage        *string         `json:"errorMessage,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`

	// Stored is set once the record has been written to the history store.
	Stored bool `json:"-"`
}

type ValidationList struct {
	Validations []*Validation `json:"validations"`
	Total       int           `json:"total"`
}

// ValidationJob is the queue payload for an asynchronous validation.
type ValidationJob struct {
	ValidationID uuid.UUID       `json:"validation_id"`
	Input        ValidationInput `json:"input"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
}

type CheckContractRequest struct {
	APIResponse      json.RawMessage `json:"apiResponse"`
	ExpectedContract json.RawMessage `json:"expectedContract"`
	Strict           bool            `json:"strict"`
}

type CheckContractResponse struct {
	Pass        bool   `json:"pass"`
	Diff        any    `json:"diff"`
	Report      string `json:"report"`
	Fingerprint string `json:"fingerprint"`
}
