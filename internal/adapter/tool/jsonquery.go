package tool

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

type jsonQueryInput struct {
	Document string `json:"document" jsonschema:"description=JSON document to query"`
	Path     string `json:"path" jsonschema:"description=GJSON path such as items.#.name or users.#(age>30).name"`
}

type JSONQueryTool struct {
	schema map[string]any
}

func NewJSONQueryTool() *JSONQueryTool {
	return &JSONQueryTool{schema: SchemaFor[jsonQueryInput]()}
}

func (t *JSONQueryTool) Name() string { return "json_query" }
func (t *JSONQueryTool) Description() string {
	return "Extracts values from a JSON document with a GJSON path expression."
}
func (t *JSONQueryTool) Parameters() map[string]any { return t.schema }

func (t *JSONQueryTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	in, err := DecodeInput[jsonQueryInput](input, t.schema)
	if err != nil {
		return nil, err
	}

	if !gjson.Valid(in.Document) {
		return nil, fmt.Errorf("document is not valid JSON")
	}

	result := gjson.Get(in.Document, in.Path)
	if !result.Exists() {
		return nil, fmt.Errorf("no value at path %q", in.Path)
	}
	if result.Type == gjson.String {
		return result.Str, nil
	}
	return result.Raw, nil
}
