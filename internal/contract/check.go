package contract

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Options tunes Check.
type Options struct {
	// Strict makes undeclared fields fail the check. Objects whose schema
	// declares no properties, the empty contract included, stay open.
	Strict bool
}

// Mismatch is a value whose JSON type (or enum membership) differs from the
// contract.
type Mismatch struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Diff is the structured result of Check. Paths use dotted member names and
// [i] element indexes; the root value is "$". Matched paths collapse element
// indexes to [] so large arrays do not repeat every member.
type Diff struct {
	Pass       bool       `json:"pass"`
	Matched    []string   `json:"matched"`
	Mismatched []Mismatch `json:"mismatched"`
	Missing    []string   `json:"missing"`
	Extra      []string   `json:"extra"`

	matchedSet map[string]bool
}

func newDiff() *Diff {
	return &Diff{
		Matched:    []string{},
		Mismatched: []Mismatch{},
		Missing:    []string{},
		Extra:      []string{},
		matchedSet: make(map[string]bool),
	}
}

func (d *Diff) failures(strict bool) int {
	n := len(d.Mismatched) + len(d.Missing)
	if strict {
		n += len(d.Extra)
	}
	return n
}

func (d *Diff) match(path string) {
	p := indexPattern.ReplaceAllString(path, "[]")
	if d.matchedSet[p] {
		return
	}
	d.matchedSet[p] = true
	d.Matched = append(d.Matched, p)
}

func (d *Diff) merge(other *Diff) {
	for _, p := range other.Matched {
		d.match(p)
	}
	d.Mismatched = append(d.Mismatched, other.Mismatched...)
	d.Missing = append(d.Missing, other.Missing...)
	d.Extra = append(d.Extra, other.Extra...)
}

var indexPattern = regexp.MustCompile(`\[\d+\]`)

// Check compares an observed JSON value (as produced by encoding/json into
// any) against the contract. A flat-fields contract applied to an array
// value checks every element against the field list.
func Check(c *Contract, value any, opts Options) *Diff {
	schema := c.Normalized()
	if c.Kind == KindFlatFields {
		if _, isArray := value.([]any); isArray {
			schema = &Schema{Type: TypeSet{"array"}, Items: schema}
		}
	}

	d := newDiff()
	walk(d, "", schema, value, opts)

	sort.Strings(d.Matched)
	sort.Slice(d.Mismatched, func(i, j int) bool { return d.Mismatched[i].Path < d.Mismatched[j].Path })
	sort.Strings(d.Missing)
	sort.Strings(d.Extra)
	d.Pass = d.failures(opts.Strict) == 0
	return d
}

// walk checks one node and returns whether its type matched. Arrays also
// require every element to pass.
func walk(d *Diff, path string, s *Schema, v any, opts Options) bool {
	if s == nil {
		return true
	}

	if len(s.OneOf) > 0 {
		return walkOneOf(d, path, s.OneOf, v, opts)
	}

	if len(s.Type) > 0 && !s.Type.accepts(v) {
		d.Mismatched = append(d.Mismatched, Mismatch{
			Path:     displayPath(path),
			Expected: s.Type.String(),
			Actual:   TypeOf(v),
		})
		return false
	}

	if len(s.Enum) > 0 && !inEnum(s.Enum, v) {
		d.Mismatched = append(d.Mismatched, Mismatch{
			Path:     displayPath(path),
			Expected: "one of " + formatEnum(s.Enum),
			Actual:   fmt.Sprintf("%v", v),
		})
		return false
	}

	switch val := v.(type) {
	case map[string]any:
		walkObject(d, path, s, val, opts)
	case []any:
		if s.Items != nil {
			before := d.failures(opts.Strict)
			for i, elem := range val {
				child := fmt.Sprintf("%s[%d]", path, i)
				walk(d, child, s.Items, elem, opts)
			}
			return d.failures(opts.Strict) == before
		}
	}
	return true
}

func walkObject(d *Diff, path string, s *Schema, obj map[string]any, opts Options) {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	for _, name := range names {
		child := joinPath(path, name)
		fv, present := obj[name]
		if !present {
			if required[name] {
				d.Missing = append(d.Missing, child)
			}
			continue
		}
		if walk(d, child, s.Properties[name], fv, opts) {
			d.match(child)
		}
	}

	// Required names without a property schema still have to be present.
	for _, r := range s.Required {
		if _, declared := s.Properties[r]; declared {
			continue
		}
		if _, present := obj[r]; !present {
			d.Missing = append(d.Missing, joinPath(path, r))
		}
	}

	if len(s.Properties) == 0 && s.AdditionalProperties == nil {
		return
	}

	closed := s.AdditionalProperties != nil && !*s.AdditionalProperties
	for key, fv := range obj {
		if _, declared := s.Properties[key]; declared {
			continue
		}
		child := joinPath(path, key)
		if closed {
			d.Mismatched = append(d.Mismatched, Mismatch{
				Path:     child,
				Expected: "no additional properties",
				Actual:   TypeOf(fv),
			})
			continue
		}
		d.Extra = append(d.Extra, child)
	}
}

// walkOneOf merges the result of the alternative with the fewest failures.
// Ties go to the earliest alternative.
func walkOneOf(d *Diff, path string, alts []*Schema, v any, opts Options) bool {
	var best *Diff
	bestOK := false
	for _, alt := range alts {
		sub := newDiff()
		ok := walk(sub, path, alt, v, opts)
		if best == nil || sub.failures(opts.Strict) < best.failures(opts.Strict) {
			best, bestOK = sub, ok
		}
	}
	if best != nil {
		d.merge(best)
	}
	return bestOK
}

func (t TypeSet) accepts(v any) bool {
	for _, name := range t {
		switch name {
		case "string":
			if _, ok := v.(string); ok {
				return true
			}
		case "number":
			if _, ok := toFloat(v); ok {
				return true
			}
		case "integer":
			if f, ok := toFloat(v); ok && f == math.Trunc(f) && !math.IsInf(f, 0) {
				return true
			}
		case "boolean":
			if _, ok := v.(bool); ok {
				return true
			}
		case "object":
			if _, ok := v.(map[string]any); ok {
				return true
			}
		case "array":
			if _, ok := v.([]any); ok {
				return true
			}
		case "null":
			if v == nil {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, v) {
			return true
		}
		ef, eok := toFloat(e)
		vf, vok := toFloat(v)
		if eok && vok && ef == vf {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, len(enum))
	for i, e := range enum {
		if s, ok := e.(string); ok {
			parts[i] = fmt.Sprintf("%q", s)
			continue
		}
		parts[i] = fmt.Sprintf("%v", e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// TypeOf names the JSON type of a decoded value.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
