package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects the JSON schema of T into the plain object form tools
// advertise to the model.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("reflect schema of %T: %v", zero, err))
	}

	params := map[string]any{}
	if err := json.Unmarshal(data, &params); err != nil {
		panic(fmt.Sprintf("decode schema of %T: %v", zero, err))
	}

	delete(params, "$schema")
	delete(params, "$id")
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]any{}
	}
	params["type"] = "object"
	return params
}

// DecodeInput converts tool input into T. Unknown fields and missing
// required fields are rejected.
func DecodeInput[T any](input map[string]any, schema map[string]any) (T, error) {
	var out T

	var missing []string
	for _, name := range requiredFields(schema) {
		if _, ok := input[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return out, fmt.Errorf("invalid input parameters: missing required field(s) %s", strings.Join(missing, ", "))
	}

	data, err := json.Marshal(input)
	if err != nil {
		return out, fmt.Errorf("invalid input parameters: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("invalid input parameters: %w", err)
	}
	return out, nil
}

// FormatOutput renders v as indented JSON text.
func FormatOutput(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format output: %w", err)
	}
	return string(data), nil
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
