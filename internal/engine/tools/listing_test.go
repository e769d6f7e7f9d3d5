package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDirectoryTool_Name(t *testing.T) {
	tool := NewListDirectoryTool()
	assert.Equal(t, "list_directory", tool.Name())
}

func TestListDirectoryTool_SortsAndMarksDirectories(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "b.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "a.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(workdir, "sub"), 0755))

	toolCtx, emitter := newToolContext(t, workdir)

	tool := NewListDirectoryTool()
	result, err := tool.RunAsync(context.Background(), map[string]interface{}{}, toolCtx)

	require.NoError(t, err)
	assert.Equal(t, "a.txt\nb.txt\nsub/", result)

	logs := emitter.toolLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "list . (3 entries)", logs[0].Message)
}

func TestListDirectoryTool_Subdirectory(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workdir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "sub", "inner.txt"), []byte("x"), 0644))

	toolCtx, _ := newToolContext(t, workdir)

	tool := NewListDirectoryTool()
	result, err := tool.RunAsync(context.Background(), map[string]interface{}{
		"path": "sub",
	}, toolCtx)

	require.NoError(t, err)
	assert.Equal(t, "inner.txt", result)
}

func TestListDirectoryTool_PatternFilter(t *testing.T) {
	workdir := t.TempDir()
	for _, name := range []string{"main.go", "main_test.go", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(workdir, name), []byte("x"), 0644))
	}

	toolCtx, _ := newToolContext(t, workdir)

	tool := NewListDirectoryTool()
	result, err := tool.RunAsync(context.Background(), map[string]interface{}{
		"pattern": "*.go",
	}, toolCtx)

	require.NoError(t, err)
	assert.Equal(t, "main.go\nmain_test.go", result)
}

func TestListDirectoryTool_InvalidPattern(t *testing.T) {
	toolCtx, _ := newToolContext(t, t.TempDir())

	tool := NewListDirectoryTool()
	_, err := tool.RunAsync(context.Background(), map[string]interface{}{
		"pattern": "[unclosed",
	}, toolCtx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid glob pattern")
}

func TestListDirectoryTool_CapsEntries(t *testing.T) {
	workdir := t.TempDir()
	for i := 0; i < MaxListEntries+5; i++ {
		name := fmt.Sprintf("file-%04d.txt", i)
		require.NoError(t, os.WriteFile(filepath.Join(workdir, name), []byte("x"), 0644))
	}

	toolCtx, emitter := newToolContext(t, workdir)

	tool := NewListDirectoryTool()
	result, err := tool.RunAsync(context.Background(), map[string]interface{}{}, toolCtx)
	require.NoError(t, err)

	lines := strings.Split(result, "\n")
	// 400 entries plus the truncation note.
	require.Len(t, lines, MaxListEntries+1)
	assert.Equal(t, fmt.Sprintf("... (showing first %d of %d entries)", MaxListEntries, MaxListEntries+5),
		lines[len(lines)-1])

	logs := emitter.toolLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, fmt.Sprintf("list . (%d entries)", MaxListEntries+5), logs[0].Message)
}

func TestListDirectoryTool_Missing(t *testing.T) {
	toolCtx, _ := newToolContext(t, t.TempDir())

	tool := NewListDirectoryTool()
	_, err := tool.RunAsync(context.Background(), map[string]interface{}{
		"path": "ghost",
	}, toolCtx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Directory does not exist")
}

func TestListDirectoryTool_NotADirectory(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "plain.txt"), []byte("x"), 0644))

	toolCtx, _ := newToolContext(t, workdir)

	tool := NewListDirectoryTool()
	_, err := tool.RunAsync(context.Background(), map[string]interface{}{
		"path": "plain.txt",
	}, toolCtx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Path is not a directory")
}
