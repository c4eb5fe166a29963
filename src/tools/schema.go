package tools

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// checkSchema makes sure a tool's declared input schema compiles.
func checkSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return fmt.Errorf("invalid input schema: %w", err)
	}
	return nil
}

// PrepareArguments fills schema defaults for missing top-level properties and
// validates the result. The caller's map is not modified.
func PrepareArguments(spec ToolSpec, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if spec.InputSchema == nil {
		return out, nil
	}

	if props, ok := spec.InputSchema["properties"].(map[string]any); ok {
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if _, set := out[name]; !set {
				if def, has := prop["default"]; has {
					out[name] = def
				}
			}
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(spec.InputSchema),
		gojsonschema.NewGoLoader(out),
	)
	if err != nil {
		return nil, fmt.Errorf("validate %s arguments: %w", spec.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid %s arguments: %s", spec.Name, strings.Join(msgs, "; "))
	}
	return out, nil
}

// IntArg reads an integer argument. JSON numbers arrive as float64, so whole
// floats are accepted.
func IntArg(args map[string]any, name string, fallback int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be a whole number, got %v", name, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", name, raw)
	}
}

// StringArg reads a string argument.
func StringArg(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", errors.New(name + " is required")
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", name, raw)
	}
	return s, nil
}
