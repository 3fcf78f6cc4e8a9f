package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads a JSON or YAML document from path ("-" is stdin) and
// returns it as JSON. YAML is chosen by extension, or tried when the content
// is not valid JSON.
func LoadDocument(path string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ToJSON(data, filepath.Ext(path))
}

// ToJSON converts a document to JSON. ext is a file extension hint.
func ToJSON(data []byte, ext string) (json.RawMessage, error) {
	ext = strings.ToLower(ext)
	if ext != ".yaml" && ext != ".yml" && json.Valid(data) {
		return json.RawMessage(data), nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document is neither JSON nor YAML: %w", err)
	}
	out, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("convert YAML to JSON: %w", err)
	}
	return json.RawMessage(out), nil
}

// normalizeYAML turns map[interface{}]interface{} nodes, which yaml produces
// for non-string keys, into JSON-encodable maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	}
	return v
}
