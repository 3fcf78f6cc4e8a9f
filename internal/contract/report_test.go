package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	d := &Diff{
		Pass:       false,
		Matched:    []string{"id"},
		Mismatched: []Mismatch{{Path: "price", Expected: "number", Actual: "string"}},
		Missing:    []string{"sku"},
		Extra:      []string{},
	}

	want := `Overall Result: FAIL

Matching Fields:
  - id

Mismatched Fields:
  - price → Expected: number, Received: string

Missing Fields:
  - sku (expected, but missing)

Extra Fields:
  (none)
`
	assert.Equal(t, want, Format(d))
}

func TestFingerprint_SameSchemaAcrossShapes(t *testing.T) {
	legacy := mustParse(t, `[{"field":"name","type":"string"},{"field":"id","type":"number"}]`)
	tagged := mustParse(t, `{"kind":"flat-fields","fields":[{"field":"id","type":"number"},{"field":"name","type":"string"}]}`)
	schema := mustParse(t, `{"type":"object","required":["id","name"],"properties":{"id":{"type":"number"},"name":{"type":"string"}}}`)

	fp := Fingerprint(legacy)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(tagged))
	assert.Equal(t, fp, Fingerprint(schema))
}

func TestFingerprint_DiffersOnType(t *testing.T) {
	a := mustParse(t, `[{"field":"id","type":"number"}]`)
	b := mustParse(t, `[{"field":"id","type":"string"}]`)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
