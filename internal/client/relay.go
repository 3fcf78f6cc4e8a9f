package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contract-relay/internal/contract"
	"contract-relay/internal/models"
)

// DefaultServer is where the relay listens unless configured otherwise.
const DefaultServer = "http://localhost:5000"

// APIError is a non-2xx answer from the relay.
type APIError struct {
	Status  int
	Err     string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}
	return e.Err
}

// CheckResult is the relay's structural check answer.
type CheckResult struct {
	Pass        bool          `json:"pass"`
	Diff        contract.Diff `json:"diff"`
	Report      string        `json:"report"`
	Fingerprint string        `json:"fingerprint"`
}

type RelayClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	if baseURL == "" {
		baseURL = DefaultServer
	}
	return &RelayClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Validate sends one relay request and returns the model's verdict text.
func (c *RelayClient) Validate(ctx context.Context, in models.ValidationInput) (string, error) {
	var resp models.ValidateContractResponse
	if err := c.do(ctx, http.MethodPost, "/api/gpt/contract/validate", in, &resp); err != nil {
		return "", err
	}
	return resp.ValidationResult, nil
}

func (c *RelayClient) Check(ctx context.Context, req models.CheckContractRequest) (*CheckResult, error) {
	var resp CheckResult
	if err := c.do(ctx, http.MethodPost, "/api/gpt/contract/check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RelayClient) NewSession(ctx context.Context) (*models.CreateSessionResponse, error) {
	var resp models.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/gpt/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RelayClient) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/gpt/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func (c *RelayClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e models.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Err: e.Error, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}
