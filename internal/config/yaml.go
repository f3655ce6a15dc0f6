package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON converts a config file's bytes to JSON so both YAML and JSON
// files go through the same strict decoder (DisallowUnknownFields). Files
// without a .yaml/.yml extension are assumed to be JSON already.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	b, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return b, nil
}

// jsonSafe rewrites YAML maps to string-keyed maps so the value can be
// JSON-marshaled. Role-ladder keys are server IDs, which YAML parses as
// integer keys when unquoted.
func jsonSafe(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = jsonSafe(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = jsonSafe(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = jsonSafe(x[i])
		}
		return x
	default:
		return in
	}
}
