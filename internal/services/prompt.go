package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"contract-relay/internal/models"
)

// BuildValidationPrompt asks the model to compare the observed response with
// the expected contract and answer in a fixed section layout. Both documents
// are embedded as received, re-indented with two spaces.
func BuildValidationPrompt(in models.ValidationInput) string {
	var b strings.Builder

	b.WriteString("Act like a top-tier API contract testing expert.\n\n")

	b.WriteString("**Contract Test Details**\n\n")
	b.WriteString("API Endpoint: " + in.APIEndpoint + "\n")
	b.WriteString("HTTP Method: " + in.HTTPMethod + "\n")
	if hasJSONValue(in.RequestBody) {
		b.WriteString("Request Body:\n" + indentJSON(in.RequestBody) + "\n")
	}
	b.WriteString("API Response:\n" + indentJSON(in.APIResponse) + "\n")
	b.WriteString("Expected Contract:\n" + indentJSON(in.ExpectedContract) + "\n\n")

	b.WriteString(`**Results**

Overall Result: (Pass/Fail)

Matching Fields:
(List of matching fields)

Mismatched Fields:
- Field Name → Expected: (value), Received: (value)

Missing Fields:
- Field Name (Expected, but missing!)

**AI Insights**

Predictive Analysis:
(Risks and breaking changes, concisely)

Suggested Fixes:
- Field Name → Fix Suggestion

Give short answers in exactly this format.`)

	return b.String()
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func hasJSONValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
