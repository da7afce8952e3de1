package tool

import (
	"context"
	"fmt"
	"strings"

	"agentloop/internal/application/port/output"
	"agentloop/internal/infrastructure/browser/htmlclean"
)

type fetchPageInput struct {
	URL    string `json:"url" jsonschema:"description=Absolute http or https URL"`
	Format string `json:"format,omitempty" jsonschema:"description=Return cleaned html or plain text. Defaults to text.,enum=text,enum=html"`
}

type FetchPageTool struct {
	fetcher output.PageFetcher
	limit   int
	schema  map[string]any
}

func NewFetchPageTool(fetcher output.PageFetcher, limit int) *FetchPageTool {
	return &FetchPageTool{fetcher: fetcher, limit: limit, schema: SchemaFor[fetchPageInput]()}
}

func (t *FetchPageTool) Name() string { return "fetch_page" }
func (t *FetchPageTool) Description() string {
	return "Loads a web page in a headless browser, runs its scripts and returns the rendered content as text or cleaned HTML."
}
func (t *FetchPageTool) Parameters() map[string]any { return t.schema }

func (t *FetchPageTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	in, err := DecodeInput[fetchPageInput](input, t.schema)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(in.URL, "http://") && !strings.HasPrefix(in.URL, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}

	page, err := t.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		return nil, err
	}

	cfg := htmlclean.DefaultConfig
	cfg.MaxOutputSize = t.limit

	var content string
	switch in.Format {
	case "", "text":
		content, err = htmlclean.Text(page.HTML, cfg)
	case "html":
		content, err = htmlclean.Clean(page.HTML, cfg)
	default:
		return nil, fmt.Errorf("unknown format %q", in.Format)
	}
	if err != nil {
		return nil, err
	}

	return fmt.Sprintf("Title: %s\nURL: %s\n\n%s", page.Title, page.URL, content), nil
}
