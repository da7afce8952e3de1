package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agentloop/internal/application/service"
	"agentloop/internal/domain/entity"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func workspace(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/notes/todo.txt", []byte("buy milk\ncall mom\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/notes/deep/idea.md", []byte("# idea"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/readme.md", []byte("0123456789"), 0o644))
	return fs
}

func TestCurrentTimeTool(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tool := NewCurrentTimeTool(func() time.Time { return fixed })

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z", gjson.Get(out.(string), "time").String())
	assert.Equal(t, "Friday", gjson.Get(out.(string), "weekday").String())

	_, err = tool.Execute(context.Background(), map[string]any{"zone": "Mars/Olympus"})
	assert.ErrorContains(t, err, "unknown time zone")
}

func TestReadFileTool(t *testing.T) {
	tool := NewReadFileTool(workspace(t))
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{"path": "notes/todo.txt"})
	require.NoError(t, err)
	assert.Equal(t, "buy milk\ncall mom\n", out)

	out, err = tool.Execute(ctx, map[string]any{"path": "readme.md", "offset": float64(2), "limit": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "234\n... (5 more bytes)", out)

	out, err = tool.Execute(ctx, map[string]any{"path": "../../readme.md"})
	require.NoError(t, err, "paths cannot leave the workspace root")
	assert.Equal(t, "0123456789", out)

	_, err = tool.Execute(ctx, map[string]any{"path": "notes"})
	assert.ErrorContains(t, err, "is a directory")

	_, err = tool.Execute(ctx, map[string]any{"path": "missing.txt"})
	assert.Error(t, err)

	_, err = tool.Execute(ctx, map[string]any{})
	assert.ErrorContains(t, err, "invalid input parameters")
}

func TestListFilesTool(t *testing.T) {
	tool := NewListFilesTool(workspace(t))
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	paths := gjson.Get(out.(string), "entries.#.path").Array()
	require.Len(t, paths, 2)
	assert.Equal(t, "notes", paths[0].String())
	assert.Equal(t, "readme.md", paths[1].String())

	out, err = tool.Execute(ctx, map[string]any{"path": "notes", "recursive": true})
	require.NoError(t, err)
	var got []string
	for _, p := range gjson.Get(out.(string), "entries.#.path").Array() {
		got = append(got, p.String())
	}
	assert.Equal(t, []string{"deep", "deep/idea.md", "todo.txt"}, got)

	_, err = tool.Execute(ctx, map[string]any{"path": "readme.md"})
	assert.ErrorContains(t, err, "not a directory")
}

func TestJSONQueryTool(t *testing.T) {
	tool := NewJSONQueryTool()
	ctx := context.Background()
	doc := `{"users":[{"name":"ada","age":36},{"name":"bob","age":25}]}`

	out, err := tool.Execute(ctx, map[string]any{"document": doc, "path": "users.#(age>30).name"})
	require.NoError(t, err)
	assert.Equal(t, "ada", out)

	out, err = tool.Execute(ctx, map[string]any{"document": doc, "path": "users.#.age"})
	require.NoError(t, err)
	assert.Equal(t, "[36,25]", out)

	_, err = tool.Execute(ctx, map[string]any{"document": doc, "path": "missing"})
	assert.ErrorContains(t, err, "no value")

	_, err = tool.Execute(ctx, map[string]any{"document": "{", "path": "a"})
	assert.ErrorContains(t, err, "not valid JSON")
}

type stubFetcher struct {
	page *entity.Page
	err  error
	urls []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*entity.Page, error) {
	f.urls = append(f.urls, url)
	return f.page, f.err
}

func (f *stubFetcher) Close() {}

func TestFetchPageTool(t *testing.T) {
	fetcher := &stubFetcher{page: &entity.Page{
		URL:   "https://example.com/",
		Title: "Example",
		HTML:  `<html><body><h1>Example Domain</h1><script>x()</script><p data-x="1">More info</p></body></html>`,
	}}
	tool := NewFetchPageTool(fetcher, 0)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Title: Example\nURL: https://example.com/\n\nExample Domain\nMore info", out)

	out, err = tool.Execute(ctx, map[string]any{"url": "https://example.com", "format": "html"})
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Example Domain</h1>")
	assert.NotContains(t, out, "data-x")

	_, err = tool.Execute(ctx, map[string]any{"url": "file:///etc/passwd"})
	assert.Error(t, err)
	assert.Len(t, fetcher.urls, 2)

	fetcher.err = errors.New("net::ERR_NAME_NOT_RESOLVED")
	_, err = tool.Execute(ctx, map[string]any{"url": "https://nowhere.invalid"})
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
}

func TestBuiltins_RegisterCleanly(t *testing.T) {
	tools := Builtins(workspace(t), &stubFetcher{}, 1000)
	registry, err := service.NewToolRegistry(tools...)
	require.NoError(t, err)

	assert.Equal(t, []string{"current_time", "read_file", "list_files", "json_query", "fetch_page"}, registry.Names())
	for _, def := range registry.Definitions() {
		assert.Equal(t, "object", def.Parameters["type"], def.Name)
		assert.False(t, strings.TrimSpace(def.Description) == "", def.Name)
	}

	assert.Len(t, Builtins(workspace(t), nil, 0), 4)
}
