// Package client drives the relay from outside the server: it calls the API
// under test, holds the form state a user edits, and talks to the relay.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// bodyMethods are the methods whose request body is sent.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Fetcher calls the API under test and returns its JSON body.
type Fetcher struct {
	HTTP *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: timeout}}
}

// Fetch issues method against url and returns the response body if it is
// JSON. The body argument is only sent for POST, PUT and PATCH. Non-2xx
// statuses are not errors; the API's JSON error body is what gets validated.
func (f *Fetcher) Fetch(ctx context.Context, url, method string, body json.RawMessage) (json.RawMessage, error) {
	method = strings.ToUpper(method)

	var reader io.Reader
	if bodyMethods[method] && len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("response from %s is not JSON (status %d)", url, resp.StatusCode)
	}
	return json.RawMessage(data), nil
}
