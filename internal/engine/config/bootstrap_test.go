package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskai.yaml")
	content := `
provider: anthropic
model: claude-sonnet-4-20250514
workdir: /home/user/projects
confirm_shell: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	boot, err := LoadBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", boot.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", boot.Model)
	require.NotNil(t, boot.ConfirmShell)
	assert.False(t, *boot.ConfirmShell)
	assert.Nil(t, boot.ConfirmWrites)
}

func TestLoadBootstrap_APIKeyEnv(t *testing.T) {
	t.Setenv("DESKAI_TEST_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "deskai.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key_env: DESKAI_TEST_KEY\n"), 0600))

	boot, err := LoadBootstrap(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", boot.APIKey)
}

func TestLoadBootstrap_MissingFile(t *testing.T) {
	_, err := LoadBootstrap(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadBootstrap_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0600))

	_, err := LoadBootstrap(path)
	assert.Error(t, err)
}

func TestBootstrap_Merge(t *testing.T) {
	f := false
	flags := &Bootstrap{Model: "gpt-4o"}
	file := &Bootstrap{
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Workdir:      "/srv/work",
		ConfirmShell: &f,
	}

	require.NoError(t, flags.Merge(file))

	// Flag values win, file fills the rest.
	assert.Equal(t, "gpt-4o", flags.Model)
	assert.Equal(t, "openai", flags.Provider)
	assert.Equal(t, "/srv/work", flags.Workdir)
	require.NotNil(t, flags.ConfirmShell)
	assert.False(t, *flags.ConfirmShell)
}

func TestBootstrap_MergeNil(t *testing.T) {
	boot := &Bootstrap{Provider: "openai"}
	require.NoError(t, boot.Merge(nil))
	assert.Equal(t, "openai", boot.Provider)
}

func TestSaveBootstrap_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	v := true
	in := &Bootstrap{Provider: "anthropic", Model: "claude-sonnet-4-20250514", AllowSystemWide: &v}

	require.NoError(t, SaveBootstrap(in, path))
	out, err := LoadBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, in.Provider, out.Provider)
	assert.Equal(t, in.Model, out.Model)
	require.NotNil(t, out.AllowSystemWide)
	assert.True(t, *out.AllowSystemWide)
}

func TestBootstrap_Options(t *testing.T) {
	f := false
	boot := &Bootstrap{Provider: "openai", APIKey: "sk", Model: "gpt-4o", Workdir: "/w", ConfirmWrites: &f}

	opts := boot.Options()
	assert.Equal(t, "openai", opts.Provider)
	assert.Equal(t, "sk", opts.APIKey)
	require.NotNil(t, opts.ConfirmWrites)
	assert.False(t, *opts.ConfirmWrites)
	assert.Nil(t, opts.ConfirmShell)
}
