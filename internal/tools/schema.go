package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nfrm/cary-services/internal/logstore"
)

// ErrInvalidArguments wraps every argument decoding or validation failure.
var ErrInvalidArguments = errors.New("invalid arguments")

// operators lists every spelling logstore.ParseOp accepts.
var operators = []any{"==", "!=", "<", "<=", ">", ">=", "=", "<>"}

func filtersSchema() map[string]any {
	op := func(description string) map[string]any {
		return map[string]any{"type": "string", "description": description, "enum": operators}
	}
	return map[string]any{
		"type": "array",
		"description": "Filter conditions combined with AND. Each has 'field' (dot path such as 'api_name', " +
			"'user_details.user_email' or 'timestamp'), 'op' (one of ==, !=, <, <=, >, >=) and 'value'. " +
			"For timestamps use ISO 8601 strings such as '2024-05-21T00:00:00Z'.",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"field":    map[string]any{"type": "string", "description": "Document field to filter on"},
				"op":       op("Comparison operator"),
				"operator": op("Alias of op"),
				"value":    map[string]any{"description": "Value to compare against"},
			},
			"required": []any{"field", "value"},
			"anyOf": []any{
				map[string]any{"required": []any{"op"}},
				map[string]any{"required": []any{"operator"}},
			},
		},
	}
}

func limitSchema(def int, description string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"minimum":     1,
		"default":     def,
		"description": description,
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	req := make([]any, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   req,
	}
}

// validator checks raw tool arguments against a parameter schema.
type validator struct {
	schema *jsonschema.Schema
}

func newValidator(name string, params map[string]any) (*validator, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &validator{schema: s}, nil
}

// decode validates args and unmarshals them into dst. Empty arguments are
// treated as an empty object.
func (v *validator) decode(args string, dst any) error {
	if len(bytes.TrimSpace([]byte(args))) == 0 {
		args = "{}"
	}
	var doc any
	if err := json.Unmarshal([]byte(args), &doc); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArguments, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal([]byte(args), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func validateFilters(filters []logstore.Filter) error {
	for i, f := range filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%w: filter %d: %v", ErrInvalidArguments, i, err)
		}
	}
	return nil
}
