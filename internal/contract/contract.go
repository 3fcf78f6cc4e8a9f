// Package contract models expected API response shapes and checks observed
// JSON values against them.
//
// Two contract kinds exist. A flat-fields contract is a list of named fields
// with a compact type grammar ("string", "number[]", "integer?"). A
// json-schema contract is a subset of JSON Schema (type, properties,
// required, items, oneOf, enum, additionalProperties). Both normalise into a
// single *Schema tree before checking.
package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindFlatFields Kind = "flat-fields"
	KindJSONSchema Kind = "json-schema"
)

var (
	ErrEmptyContract     = errors.New("contract is empty")
	ErrInvalidJSON       = errors.New("contract is not valid JSON")
	ErrUnknownKind       = errors.New("unknown contract kind")
	ErrUnrecognizedShape = errors.New("unrecognized contract shape")
	ErrInvalidField      = errors.New("invalid contract field")
	ErrUnknownType       = errors.New("unknown type name")
)

// Contract is the tagged contract format. Exactly one of Fields or Schema is
// meaningful, selected by Kind.
type Contract struct {
	Kind   Kind    `json:"kind"`
	Fields []Field `json:"fields,omitempty"`
	Schema *Schema `json:"schema,omitempty"`
}

// Field is one member of a flat-fields contract. The name may be given as
// "field" or "name".
type Field struct {
	Name     string  `json:"field"`
	Type     string  `json:"type"`
	Required *bool   `json:"required,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Items    *Field  `json:"items,omitempty"`
}

func (f *Field) UnmarshalJSON(data []byte) error {
	type alias Field
	var aux struct {
		alias
		Alt string `json:"name"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = Field(aux.alias)
	if f.Name == "" {
		f.Name = aux.Alt
	}
	return nil
}

// Schema is the JSON Schema subset understood by Check.
type Schema struct {
	Type                 TypeSet            `json:"type,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// TypeSet holds one or more JSON type names. It decodes from either a string
// or an array of strings.
type TypeSet []string

func (t *TypeSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return err
		}
		*t = names
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*t = TypeSet{name}
	return nil
}

func (t TypeSet) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t TypeSet) has(name string) bool {
	for _, n := range t {
		if n == name {
			return true
		}
	}
	return false
}

func (t TypeSet) String() string {
	if len(t) == 0 {
		return "any"
	}
	return strings.Join(t, "|")
}

var schemaTypes = map[string]bool{
	"string": true, "number": true, "integer": true, "boolean": true,
	"object": true, "array": true, "null": true,
}

var typeAliases = map[string]string{
	"int":    "integer",
	"long":   "integer",
	"float":  "number",
	"double": "number",
	"bool":   "boolean",
	"str":    "string",
	"map":    "object",
	"list":   "array",
}

// Parse decodes a contract in the tagged format or in one of the untagged
// legacy shapes: an array of {field, type} objects, an array of JSON Schema
// objects (treated as alternatives), or a single JSON Schema object.
func Parse(raw []byte) (*Contract, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrEmptyContract
	}

	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var c *Contract
	var err error
	switch v := top.(type) {
	case []any:
		c, err = parseArray(raw, v)
	case map[string]any:
		c, err = parseObject(raw, v)
	default:
		return nil, fmt.Errorf("%w: top level must be an array or object", ErrUnrecognizedShape)
	}
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseArray(raw []byte, elems []any) (*Contract, error) {
	if len(elems) == 0 {
		return &Contract{Kind: KindFlatFields, Fields: []Field{}}, nil
	}

	switch {
	case allObjectsWith(elems, "field", "name"):
		var fields []Field
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return &Contract{Kind: KindFlatFields, Fields: fields}, nil
	case allObjectsWith(elems, "type", "properties", "oneOf"):
		var alts []*Schema
		if err := json.Unmarshal(raw, &alts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		if len(alts) == 1 {
			return &Contract{Kind: KindJSONSchema, Schema: alts[0]}, nil
		}
		return &Contract{Kind: KindJSONSchema, Schema: &Schema{OneOf: alts}}, nil
	}
	return nil, fmt.Errorf("%w: array elements must be field descriptors or schema objects", ErrUnrecognizedShape)
}

func parseObject(raw []byte, obj map[string]any) (*Contract, error) {
	if _, tagged := obj["kind"]; tagged {
		var c Contract
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		switch c.Kind {
		case KindFlatFields:
			if c.Fields == nil {
				c.Fields = []Field{}
			}
		case KindJSONSchema:
			if c.Schema == nil {
				return nil, fmt.Errorf("%w: json-schema contract has no schema", ErrUnrecognizedShape)
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
		}
		return &c, nil
	}

	if hasAnyKey(obj, "type", "properties", "oneOf") {
		var s Schema
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return &Contract{Kind: KindJSONSchema, Schema: &s}, nil
	}

	return nil, fmt.Errorf("%w: object has neither kind nor schema keywords", ErrUnrecognizedShape)
}

func allObjectsWith(elems []any, keys ...string) bool {
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok || !hasAnyKey(obj, keys...) {
			return false
		}
	}
	return true
}

func hasAnyKey(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// Validate reports the first structural problem in the contract.
func (c *Contract) Validate() error {
	switch c.Kind {
	case KindFlatFields:
		return validateFields("", c.Fields)
	case KindJSONSchema:
		return validateSchema("$", c.Schema)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
}

func validateFields(prefix string, fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidField, i)
		}
		path := joinPath(prefix, name)
		if seen[name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidField, path)
		}
		seen[name] = true

		if err := validateField(path, &f); err != nil {
			return err
		}
	}
	return nil
}

// validateField checks the type of f and everything nested under it. Item
// descriptors need no name.
func validateField(path string, f *Field) error {
	if _, _, _, err := parseFieldType(f.Type); err != nil {
		return fmt.Errorf("field %q: %w", path, err)
	}
	if err := validateFields(path, f.Fields); err != nil {
		return err
	}
	if f.Items != nil {
		return validateField(path+"[]", f.Items)
	}
	return nil
}

func validateSchema(path string, s *Schema) error {
	if s == nil {
		return nil
	}
	for _, t := range s.Type {
		if !schemaTypes[t] {
			return fmt.Errorf("%s: %w %q", path, ErrUnknownType, t)
		}
	}
	for name, p := range s.Properties {
		if err := validateSchema(path+"."+name, p); err != nil {
			return err
		}
	}
	for i, alt := range s.OneOf {
		if err := validateSchema(fmt.Sprintf("%s.oneOf[%d]", path, i), alt); err != nil {
			return err
		}
	}
	return validateSchema(path+"[]", s.Items)
}

// parseFieldType reads the flat-fields type grammar: a base name, an optional
// "[]" array suffix and an optional trailing "?" marking the field optional.
func parseFieldType(raw string) (base string, array, optional bool, err error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasSuffix(t, "?") {
		optional = true
		t = strings.TrimSuffix(t, "?")
	}
	if strings.HasSuffix(t, "[]") {
		array = true
		t = strings.TrimSuffix(t, "[]")
	}
	if t == "" {
		return "", false, false, fmt.Errorf("%w: empty type", ErrUnknownType)
	}
	if alias, ok := typeAliases[t]; ok {
		t = alias
	}
	if t != "any" && !schemaTypes[t] {
		return "", false, false, fmt.Errorf("%w %q", ErrUnknownType, raw)
	}
	return t, array, optional, nil
}

// Normalized returns the schema tree both contract kinds reduce to.
func (c *Contract) Normalized() *Schema {
	if c.Kind == KindJSONSchema {
		return c.Schema
	}
	return fieldsSchema(c.Fields)
}

func fieldsSchema(fields []Field) *Schema {
	s := &Schema{
		Type:       TypeSet{"object"},
		Properties: make(map[string]*Schema, len(fields)),
	}
	for _, f := range fields {
		fs, required := f.schema()
		name := strings.TrimSpace(f.Name)
		s.Properties[name] = fs
		if required {
			s.Required = append(s.Required, name)
		}
	}
	sort.Strings(s.Required)
	return s
}

func (f Field) schema() (*Schema, bool) {
	base, array, optional, _ := parseFieldType(f.Type)

	elem := &Schema{}
	if base != "any" {
		elem.Type = TypeSet{base}
	}
	if base == "object" && len(f.Fields) > 0 {
		nested := fieldsSchema(f.Fields)
		elem.Properties = nested.Properties
		elem.Required = nested.Required
	}
	if base == "array" && f.Items != nil {
		elem.Items, _ = f.Items.schema()
	}

	s := elem
	if array {
		s = &Schema{Type: TypeSet{"array"}, Items: elem}
		if f.Items != nil && base == "any" {
			s.Items, _ = f.Items.schema()
		}
	}

	required := !optional
	if f.Required != nil {
		required = *f.Required
	}
	return s, required
}
