package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Bootstrap is an optional on-disk configuration applied at startup, before
// any host config message arrives. Field meanings match the protocol config;
// nil booleans mean "not specified".
type Bootstrap struct {
	Provider              string `yaml:"provider,omitempty"`
	APIKey                string `yaml:"api_key,omitempty"`
	APIKeyEnv             string `yaml:"api_key_env,omitempty"`
	Model                 string `yaml:"model,omitempty"`
	Workdir               string `yaml:"workdir,omitempty"`
	AutoApproveReads      *bool  `yaml:"auto_approve_reads,omitempty"`
	ConfirmWrites         *bool  `yaml:"confirm_writes,omitempty"`
	ConfirmShell          *bool  `yaml:"confirm_shell,omitempty"`
	AllowSystemWide       *bool  `yaml:"allow_system_wide,omitempty"`
	AllowElevatedCommands *bool  `yaml:"allow_elevated_commands,omitempty"`
	ShowCommandOutput     *bool  `yaml:"show_command_output,omitempty"`
}

// LoadBootstrap loads a bootstrap configuration from a YAML file and resolves
// an api_key_env reference.
func LoadBootstrap(filePath string) (*Bootstrap, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var boot Bootstrap
	if err := yaml.Unmarshal(data, &boot); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if boot.APIKey == "" && boot.APIKeyEnv != "" {
		boot.APIKey = os.Getenv(boot.APIKeyEnv)
	}

	return &boot, nil
}

// SaveBootstrap writes a bootstrap configuration to a YAML file.
func SaveBootstrap(boot *Bootstrap, filePath string) error {
	data, err := yaml.Marshal(boot)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge fills unset fields of b from other. Fields already set on b win, so
// flag values layered over a file keep the flag.
func (b *Bootstrap) Merge(other *Bootstrap) error {
	if other == nil {
		return nil
	}
	return mergo.Merge(b, other)
}

// Options converts the bootstrap into a configuration request.
func (b *Bootstrap) Options() Options {
	return Options{
		Provider:              b.Provider,
		APIKey:                b.APIKey,
		Model:                 b.Model,
		Workdir:               b.Workdir,
		AutoApproveReads:      b.AutoApproveReads,
		ConfirmWrites:         b.ConfirmWrites,
		ConfirmShell:          b.ConfirmShell,
		AllowSystemWide:       b.AllowSystemWide,
		AllowElevatedCommands: b.AllowElevatedCommands,
		ShowCommandOutput:     b.ShowCommandOutput,
	}
}
