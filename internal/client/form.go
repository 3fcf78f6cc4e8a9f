package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"contract-relay/internal/models"
)

const (
	DefaultSessionID = "test-session-123"

	ResponsePlaceholder = `No API response yet. Click "Call API" to fetch data.`
	ResultPlaceholder   = "Validation results will appear here"
	FetchFailed         = "Failed to fetch data from API"
	ValidationFailed    = "An error occurred during validation."
)

var ErrNoEndpoint = errors.New("API endpoint is required")

var allowedMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// Form holds what a user has entered and what came back: the endpoint and
// method to call, the contract text, the observed response and the verdict.
type Form struct {
	SessionID string
	Endpoint  string

	method   string
	body     json.RawMessage
	contract json.RawMessage
	response json.RawMessage
	result   string

	fetcher *Fetcher
	relay   *RelayClient
}

func NewForm(fetcher *Fetcher, relay *RelayClient) *Form {
	return &Form{
		SessionID: DefaultSessionID,
		method:    http.MethodGet,
		contract:  json.RawMessage("[]"),
		fetcher:   fetcher,
		relay:     relay,
	}
}

func (f *Form) Method() string                   { return f.method }
func (f *Form) Contract() json.RawMessage        { return f.contract }
func (f *Form) Response() json.RawMessage        { return f.response }
func (f *Form) Result() string                   { return f.result }
func (f *Form) SetResponse(resp json.RawMessage) { f.response = resp }

func (f *Form) SetMethod(method string) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	for _, m := range allowedMethods {
		if m == method {
			f.method = method
			return nil
		}
	}
	return fmt.Errorf("unsupported HTTP method %q", method)
}

// SetContract replaces the contract when text is valid JSON and reports
// whether it did. Invalid text leaves the last valid contract in place.
func (f *Form) SetContract(text string) bool {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return false
	}
	f.contract = json.RawMessage(trimmed)
	return true
}

// SetBody sets the request body sent with POST, PUT and PATCH. Empty text
// clears it; invalid JSON is ignored like the contract.
func (f *Form) SetBody(text string) bool {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		f.body = nil
		return true
	}
	if !json.Valid(trimmed) {
		return false
	}
	f.body = json.RawMessage(trimmed)
	return true
}

// CallAPI fetches the endpoint. Any failure stores an error object as the
// response so the user still sees something, and is also returned.
func (f *Form) CallAPI(ctx context.Context) error {
	if f.Endpoint == "" {
		return ErrNoEndpoint
	}

	resp, err := f.fetcher.Fetch(ctx, f.Endpoint, f.method, f.body)
	if err != nil {
		f.response, _ = json.Marshal(map[string]string{"error": FetchFailed})
		return err
	}
	f.response = resp
	return nil
}

// Validate relays the current response and contract. It does nothing and
// reports false when there is no response yet.
func (f *Form) Validate(ctx context.Context) (bool, error) {
	if len(f.response) == 0 {
		return false, nil
	}

	in := models.ValidationInput{
		SessionID:        f.SessionID,
		APIResponse:      f.response,
		ExpectedContract: f.contract,
		APIEndpoint:      f.Endpoint,
		HTTPMethod:       f.method,
	}
	if bodyMethods[f.method] {
		in.RequestBody = f.body
	}

	result, err := f.relay.Validate(ctx, in)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			f.result = apiErr.Err
		} else {
			f.result = ValidationFailed
		}
		return true, err
	}
	f.result = result
	return true, nil
}

// RenderResponse shows the response as two-space indented JSON.
func (f *Form) RenderResponse() string {
	if len(f.response) == 0 {
		return ResponsePlaceholder
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, f.response, "", "  "); err != nil {
		return string(f.response)
	}
	return buf.String()
}

func (f *Form) RenderResult() string {
	if f.result == "" {
		return ResultPlaceholder
	}
	return f.result
}
