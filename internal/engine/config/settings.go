package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Supported providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default iteration and history bounds for a prompt turn
const (
	MaxIterations      = 10
	MaxHistoryMessages = 20
)

var providerKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Settings is the resolved engine configuration: every field defaulted,
// the API key resolved, and the working directory canonicalized.
type Settings struct {
	Provider              string
	APIKey                string
	Model                 string
	Workdir               string
	AutoApproveReads      bool
	ConfirmWrites         bool
	ConfirmShell          bool
	AllowSystemWide       bool
	AllowElevatedCommands bool
	ShowCommandOutput     bool
}

// Options carries the optional policy fields of a configuration request.
// Nil pointers take the engine defaults.
type Options struct {
	Provider              string
	APIKey                string
	Model                 string
	Workdir               string
	AutoApproveReads      *bool
	ConfirmWrites         *bool
	ConfirmShell          *bool
	AllowSystemWide       *bool
	AllowElevatedCommands *bool
	ShowCommandOutput     *bool
}

// Resolve validates a configuration request and produces runtime settings.
// All problems are reported together, not just the first.
func Resolve(opts Options) (*Settings, error) {
	var errs *multierror.Error

	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	switch provider {
	case "":
		errs = multierror.Append(errs, fmt.Errorf("Missing configuration field: provider"))
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = multierror.Append(errs, fmt.Errorf("Provider must be 'openai' or 'anthropic'."))
	}

	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		if env, ok := providerKeyEnv[provider]; ok {
			apiKey = strings.TrimSpace(os.Getenv(env))
		}
	}
	if apiKey == "" {
		errs = multierror.Append(errs, fmt.Errorf("API key must not be empty."))
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		errs = multierror.Append(errs, fmt.Errorf("Missing configuration field: model"))
	}

	workdir := strings.TrimSpace(opts.Workdir)
	if workdir == "" {
		errs = multierror.Append(errs, fmt.Errorf("Missing configuration field: workdir"))
	} else {
		resolved, err := canonicalWorkdir(workdir)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("Working directory must reference an existing directory."))
		} else {
			workdir = resolved
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &Settings{
		Provider:              provider,
		APIKey:                apiKey,
		Model:                 model,
		Workdir:               workdir,
		AutoApproveReads:      boolOr(opts.AutoApproveReads, true),
		ConfirmWrites:         boolOr(opts.ConfirmWrites, true),
		ConfirmShell:          boolOr(opts.ConfirmShell, true),
		AllowSystemWide:       boolOr(opts.AllowSystemWide, false),
		AllowElevatedCommands: boolOr(opts.AllowElevatedCommands, false),
		ShowCommandOutput:     boolOr(opts.ShowCommandOutput, true),
	}, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// canonicalWorkdir expands ~, makes the path absolute, resolves symlinks and
// verifies it names an existing directory.
func canonicalWorkdir(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", resolved)
	}
	return resolved, nil
}

// ProviderTitle returns the provider name capitalized for status messages.
func (s *Settings) ProviderTitle() string {
	if s.Provider == ProviderOpenAI {
		return "OpenAI"
	}
	return cases.Title(language.English).String(s.Provider)
}

// LogFields returns the loggable subset of the settings. The API key is
// never logged.
func (s *Settings) LogFields() logrus.Fields {
	return logrus.Fields{
		"provider":   s.Provider,
		"model":      s.Model,
		"workdir":    s.Workdir,
		"systemWide": s.AllowSystemWide,
		"elevated":   s.AllowElevatedCommands,
	}
}

// SystemPrompt builds the assistant system prompt for the current platform
// and elevation policy.
func (s *Settings) SystemPrompt() string {
	return systemPromptFor(runtime.GOOS, s.AllowElevatedCommands)
}

func systemPromptFor(goos string, allowElevated bool) string {
	var osInfo string
	switch goos {
	case "windows":
		osInfo = "Windows (use PowerShell commands like Get-Process, Get-Item, dir, etc.)"
	case "darwin":
		osInfo = "macOS (use Unix commands like ls, ps, grep, etc.)"
	case "linux":
		osInfo = "Linux (use Unix commands like ls, ps, grep, etc.)"
	default:
		osInfo = "Unknown OS"
	}

	elevatedInfo := ""
	if allowElevated {
		if goos == "windows" {
			elevatedInfo = " ELEVATED COMMANDS ENABLED: You can run commands that require administrator privileges. " +
				"Use commands that will trigger UAC elevation when needed for system operations."
		} else {
			elevatedInfo = " ELEVATED COMMANDS ENABLED: You can use 'sudo' prefix for commands that require root/administrator privileges. " +
				"When a task requires elevated access (like reading /root, system logs, installing packages, etc.), " +
				"use 'sudo' in your command (e.g., 'sudo ls /root', 'sudo cat /var/log/syslog'). " +
				"The user will be prompted for authentication via a secure OS dialog."
		}
	}

	return fmt.Sprintf(
		"You are Desk AI, a helpful desktop assistant for system management and tech support. "+
			"You can help with system tasks, file operations, troubleshooting, running commands, and general computer help. "+
			"IMPORTANT: When you need information from the system or files, you MUST use tools - never make assumptions. "+
			"Available tools: run_shell (for commands), read_file, write_file, list_directory, delete_path, search_files. "+
			"SYSTEM INFORMATION: You are running on %s. "+
			"Always use commands appropriate for this operating system. "+
			"For system information queries (RAM, CPU, disk, processes, etc.), ALWAYS use run_shell with appropriate commands for %s.%s "+
			"After calling a tool, wait for its output before responding to the user. "+
			"Keep responses concise and actionable.",
		osInfo, osInfo, elevatedInfo)
}
