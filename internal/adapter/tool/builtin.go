package tool

import (
	"time"

	"agentloop/internal/application/port/output"

	"github.com/spf13/afero"
)

// Builtins returns the standard tool set. fetch_page is only included when a
// fetcher is given.
func Builtins(workspace afero.Fs, fetcher output.PageFetcher, fetchLimit int) []output.ToolPort {
	tools := []output.ToolPort{
		NewCurrentTimeTool(time.Now),
		NewReadFileTool(workspace),
		NewListFilesTool(workspace),
		NewJSONQueryTool(),
	}
	if fetcher != nil {
		tools = append(tools, NewFetchPageTool(fetcher, fetchLimit))
	}
	return tools
}
