package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

// DefaultMaxReadBytes bounds read_file when the model does not ask for a cap.
const DefaultMaxReadBytes = 20000

// ReadFileTool implements bounded file reading
type ReadFileTool struct {
	BaseTool
}

// NewReadFileTool creates a new ReadFileTool
func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{
		BaseTool: NewBaseTool("read_file", "Read text content from a file inside the workspace.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":      map[string]interface{}{"type": "string", "description": "Relative path to the file."},
				"max_bytes": map[string]interface{}{"type": "integer", "default": 20000},
			},
			"required": []string{"path"},
		}),
	}
}

func (t *ReadFileTool) RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error) {
	pathArg, ok := stringArg(args, "path")
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Path argument is required", nil)
	}
	path, err := toolCtx.Sandbox.Resolve(pathArg)
	if err != nil {
		return "", err
	}

	maxBytes := intArg(args, "max_bytes", DefaultMaxReadBytes)
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("File does not exist: %s", path), nil)
		}
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to stat file", err)
	}
	if info.IsDir() {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("Path is not a file: %s", path), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to read file", err)
	}

	fullSize := len(data)
	text := string(data)
	if fullSize > maxBytes {
		text = string(data[:maxBytes]) + "\n... (truncated)"
	}

	toolCtx.ToolLog(fmt.Sprintf("read %s (%d bytes)", toolCtx.Sandbox.Relative(path), fullSize))
	return text, nil
}

// WriteFileTool implements whole-file writes
type WriteFileTool struct {
	BaseTool
}

// NewWriteFileTool creates a new WriteFileTool
func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{
		BaseTool: NewBaseTool("write_file", "Write text to a file inside the workspace, replacing existing content.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "description": "Relative path to the file."},
				"content": map[string]interface{}{"type": "string", "description": "Content to write to the file."},
			},
			"required": []string{"path", "content"},
		}),
	}
}

func (t *WriteFileTool) RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error) {
	pathArg, ok := stringArg(args, "path")
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Path argument is required", nil)
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Content argument is required", nil)
	}

	path, err := toolCtx.Sandbox.Resolve(pathArg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to create directory", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to write file", err)
	}

	toolCtx.ToolLog(fmt.Sprintf("write %s (%d bytes)", toolCtx.Sandbox.Relative(path), len(content)))
	return fmt.Sprintf("Wrote %d bytes to %s.", len(content), filepath.Base(path)), nil
}

// DeletePathTool removes files or directories inside the workspace
type DeletePathTool struct {
	BaseTool
}

// NewDeletePathTool creates a new DeletePathTool
func NewDeletePathTool() *DeletePathTool {
	return &DeletePathTool{
		BaseTool: NewBaseTool("delete_path", "Delete a file or directory inside the workspace.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":      map[string]interface{}{"type": "string", "description": "Relative path to delete."},
				"recursive": map[string]interface{}{"type": "boolean", "default": false},
			},
			"required": []string{"path"},
		}),
	}
}

func (t *DeletePathTool) RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error) {
	pathArg, ok := stringArg(args, "path")
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Path argument is required", nil)
	}
	recursive := boolArg(args, "recursive", false)

	path, err := toolCtx.Sandbox.ResolveForDelete(pathArg)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("Path does not exist: %s", path), nil)
		}
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to stat path", err)
	}

	if info.IsDir() {
		if recursive {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to delete path", err)
	}

	toolCtx.ToolLog(fmt.Sprintf("delete %s", toolCtx.Sandbox.Relative(path)))
	return fmt.Sprintf("Deleted %s.", filepath.Base(path)), nil
}
