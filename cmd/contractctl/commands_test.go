package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCmd_RequiresEndpointOrResponse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"field":"id","type":"number"}]`), 0o644))

	contractFile, responseFile = path, ""
	t.Cleanup(func() { contractFile, responseFile = "", "" })

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	validateCmd.SetContext(context.Background())

	err := validateCmd.RunE(validateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--response")
	assert.Empty(t, out.String())
}
