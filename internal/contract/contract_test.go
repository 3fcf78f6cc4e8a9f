package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind Kind
	}{
		{"legacy field list", `[{"field":"id","type":"number"},{"field":"name","type":"string"}]`, KindFlatFields},
		{"legacy field list using name key", `[{"name":"id","type":"integer"}]`, KindFlatFields},
		{"empty array", `[]`, KindFlatFields},
		{"single schema object", `{"type":"object","properties":{"id":{"type":"number"}}}`, KindJSONSchema},
		{"array of schema objects", `[{"type":"object"},{"type":"array"}]`, KindJSONSchema},
		{"tagged flat fields", `{"kind":"flat-fields","fields":[{"field":"id","type":"number"}]}`, KindFlatFields},
		{"tagged json schema", `{"kind":"json-schema","schema":{"type":"object"}}`, KindJSONSchema},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, c.Kind)
		})
	}
}

func TestParse_NameAliasAndOptionalMarker(t *testing.T) {
	c, err := Parse([]byte(`[{"name":"id","type":"int"},{"field":"tags","type":"string[]?"}]`))
	require.NoError(t, err)
	require.Len(t, c.Fields, 2)
	assert.Equal(t, "id", c.Fields[0].Name)

	s := c.Normalized()
	assert.Equal(t, []string{"id"}, s.Required)
	assert.Equal(t, TypeSet{"integer"}, s.Properties["id"].Type)
	assert.Equal(t, TypeSet{"array"}, s.Properties["tags"].Type)
	assert.Equal(t, TypeSet{"string"}, s.Properties["tags"].Items.Type)
}

func TestParse_SingleSchemaInArrayIsUnwrapped(t *testing.T) {
	c, err := Parse([]byte(`[{"type":"object","required":["id"]}]`))
	require.NoError(t, err)
	require.NotNil(t, c.Schema)
	assert.Empty(t, c.Schema.OneOf)
	assert.Equal(t, []string{"id"}, c.Schema.Required)
}

func TestParse_TypeList(t *testing.T) {
	c, err := Parse([]byte(`{"type":"object","properties":{"note":{"type":["string","null"]}}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeSet{"string", "null"}, c.Schema.Properties["note"].Type)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", ``, ErrEmptyContract},
		{"null", `null`, ErrEmptyContract},
		{"broken json", `[{"field":`, ErrInvalidJSON},
		{"scalar", `42`, ErrUnrecognizedShape},
		{"mixed array", `[{"field":"id","type":"number"}, 3]`, ErrUnrecognizedShape},
		{"plain object", `{"id":1}`, ErrUnrecognizedShape},
		{"unknown kind", `{"kind":"xml","fields":[]}`, ErrUnknownKind},
		{"json-schema without schema", `{"kind":"json-schema"}`, ErrUnrecognizedShape},
		{"field without name", `[{"field":"","type":"string"}]`, ErrInvalidField},
		{"duplicate field", `[{"field":"a","type":"string"},{"field":"a","type":"number"}]`, ErrInvalidField},
		{"unknown flat type", `[{"field":"a","type":"date"}]`, ErrUnknownType},
		{"unknown item type", `[{"field":"m","type":"array","items":{"type":"strin"}}]`, ErrUnknownType},
		{"unknown nested item type", `[{"field":"m","type":"array","items":{"type":"array","items":{"type":"strin"}}}]`, ErrUnknownType},
		{"unknown schema type", `{"type":"object","properties":{"a":{"type":"decimal"}}}`, ErrUnknownType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestNormalized_NestedFields(t *testing.T) {
	raw := `{"kind":"flat-fields","fields":[
		{"field":"owner","type":"object","fields":[{"field":"email","type":"string"}]},
		{"field":"lines","type":"array","items":{"field":"line","type":"object","fields":[{"field":"qty","type":"integer"}]}}
	]}`
	c, err := Parse([]byte(raw))
	require.NoError(t, err)

	s := c.Normalized()
	assert.Equal(t, []string{"lines", "owner"}, s.Required)
	assert.Equal(t, []string{"email"}, s.Properties["owner"].Required)
	require.NotNil(t, s.Properties["lines"].Items)
	assert.Equal(t, TypeSet{"integer"}, s.Properties["lines"].Items.Properties["qty"].Type)
}

func TestField_ExplicitRequiredOverridesMarker(t *testing.T) {
	c, err := Parse([]byte(`[{"field":"a","type":"string?","required":true},{"field":"b","type":"string","required":false}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.Normalized().Required)
}
