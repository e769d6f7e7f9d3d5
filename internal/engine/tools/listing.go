package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

// MaxListEntries caps one directory listing.
const MaxListEntries = 400

// ListDirectoryTool lists workspace directory contents
type ListDirectoryTool struct {
	BaseTool
}

// NewListDirectoryTool creates a new ListDirectoryTool
func NewListDirectoryTool() *ListDirectoryTool {
	return &ListDirectoryTool{
		BaseTool: NewBaseTool("list_directory", "List files and directories relative to the workspace.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "default": ".", "description": "Relative directory path."},
				"pattern": map[string]interface{}{"type": "string", "description": "Optional glob pattern."},
			},
		}),
	}
}

func (t *ListDirectoryTool) RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error) {
	pathArg, ok := stringArg(args, "path")
	if !ok || pathArg == "" {
		pathArg = "."
	}
	pattern, _ := stringArg(args, "pattern")

	directory, err := toolCtx.Sandbox.Resolve(pathArg)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("Directory does not exist: %s", directory), nil)
		}
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to stat directory", err)
	}
	if !info.IsDir() {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("Path is not a directory: %s", directory), nil)
	}

	dirEntries, err := os.ReadDir(directory)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to read directory", err)
	}

	entries := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		name := entry.Name()
		if pattern != "" {
			matched, err := filepath.Match(pattern, name)
			if err != nil {
				return "", apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("Invalid glob pattern: %s", pattern), err)
			}
			if !matched {
				continue
			}
		}
		if entry.IsDir() {
			name += "/"
		}
		entries = append(entries, name)
	}
	sort.Strings(entries)

	toolCtx.ToolLog(fmt.Sprintf("list %s (%d entries)", toolCtx.Sandbox.Relative(directory), len(entries)))

	total := len(entries)
	if total > MaxListEntries {
		entries = entries[:MaxListEntries]
		return fmt.Sprintf("%s\n... (showing first %d of %d entries)",
			strings.Join(entries, "\n"), MaxListEntries, total), nil
	}
	return strings.Join(entries, "\n"), nil
}
