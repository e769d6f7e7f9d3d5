package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deskai-dev/deskai/go/internal/engine/shell"
)

func TestToolTable_ListsCatalog(t *testing.T) {
	out := toolTable()

	for _, name := range []string{"run_shell", "read_file", "write_file", "list_directory", "delete_path", "search_files"} {
		assert.Contains(t, out, name)
	}
}

func TestParameterSummary(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string"},
			"max_bytes": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"path"},
	}

	assert.Equal(t, "max_bytes, path*", parameterSummary(schema))
}

func TestParameterSummary_NoProperties(t *testing.T) {
	assert.Equal(t, "", parameterSummary(map[string]interface{}{"type": "object"}))
}

func TestSessionTable(t *testing.T) {
	out := sessionTable([]shell.SessionInfo{
		{
			ID:        "sess-1",
			Command:   "sleep 30",
			Cwd:       "/tmp/work",
			Elevated:  true,
			StartedAt: time.Now().Add(-2 * time.Second),
		},
	})

	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "sleep 30")
	assert.Contains(t, out, "true")
}
