package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	defaultReadLimit = 64 * 1024
	maxListEntries   = 500
)

// NewWorkspaceFs confines file tools to root.
func NewWorkspaceFs(root string) afero.Fs {
	return afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// workspacePath maps a model-supplied path onto the workspace root.
func workspacePath(p string) string {
	return filepath.Clean("/" + strings.TrimSpace(p))
}

type readFileInput struct {
	Path   string `json:"path" jsonschema:"description=File path relative to the workspace root"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Byte offset to start reading from,minimum=0"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of bytes to return,minimum=1"`
}

type ReadFileTool struct {
	fs     afero.Fs
	schema map[string]any
}

func NewReadFileTool(fs afero.Fs) *ReadFileTool {
	return &ReadFileTool{fs: fs, schema: SchemaFor[readFileInput]()}
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads a text file from the workspace. Use offset and limit to page through large files."
}
func (t *ReadFileTool) Parameters() map[string]any { return t.schema }

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	in, err := DecodeInput[readFileInput](input, t.schema)
	if err != nil {
		return nil, err
	}
	if in.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}

	path := workspacePath(in.Path)
	info, err := t.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", in.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", in.Path)
	}

	data, err := afero.ReadFile(t.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in.Path, err)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if in.Offset >= len(data) {
		return "", nil
	}
	end := in.Offset + limit
	if end >= len(data) {
		return string(data[in.Offset:]), nil
	}
	return fmt.Sprintf("%s\n... (%d more bytes)", data[in.Offset:end], len(data)-end), nil
}

type listFilesInput struct {
	Path      string `json:"path,omitempty" jsonschema:"description=Directory relative to the workspace root. Defaults to the root."`
	Recursive bool   `json:"recursive,omitempty" jsonschema:"description=List subdirectories recursively"`
}

type fileEntry struct {
	Path string `json:"path"`
	Dir  bool   `json:"dir,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type ListFilesTool struct {
	fs     afero.Fs
	schema map[string]any
}

func NewListFilesTool(fs afero.Fs) *ListFilesTool {
	return &ListFilesTool{fs: fs, schema: SchemaFor[listFilesInput]()}
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "Lists files and directories in the workspace."
}
func (t *ListFilesTool) Parameters() map[string]any { return t.schema }

func (t *ListFilesTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	in, err := DecodeInput[listFilesInput](input, t.schema)
	if err != nil {
		return nil, err
	}

	root := workspacePath(in.Path)
	entries := []fileEntry{}
	truncated := false

	err = afero.Walk(t.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", in.Path)
			}
			return nil
		}
		if len(entries) >= maxListEntries {
			truncated = true
			return filepath.SkipAll
		}

		rel, _ := filepath.Rel(root, path)
		entry := fileEntry{Path: filepath.ToSlash(rel), Dir: info.IsDir()}
		if !info.IsDir() {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)

		if info.IsDir() && !in.Recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, fmt.Errorf("list %s: %w", in.Path, err)
	}

	return FormatOutput(map[string]any{
		"entries":   entries,
		"truncated": truncated,
	})
}
