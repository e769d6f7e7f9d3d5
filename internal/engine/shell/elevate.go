package shell

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Escalation prefixes recognized on Unix platforms
var unixEscalators = map[string]bool{
	"sudo":   true,
	"doas":   true,
	"pkexec": true,
}

// Substrings that mark a Windows command as requiring administrator rights
var windowsAdminMarkers = []string{
	"reg add",
	"reg delete",
	"sc.exe",
	"net user",
	"net localgroup",
	"set-executionpolicy",
	"install-",
}

// IsElevated reports whether the command requests elevated privileges on the
// current platform.
func IsElevated(command string) bool {
	return isElevatedFor(runtime.GOOS, command)
}

func isElevatedFor(goos, command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)

	if goos == "windows" {
		if strings.HasPrefix(lower, "sudo ") || strings.HasPrefix(lower, "runas") {
			return true
		}
		for _, marker := range windowsAdminMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		return false
	}

	tokens, err := shellwords.Parse(trimmed)
	if err != nil || len(tokens) == 0 {
		tokens = strings.Fields(trimmed)
	}
	if len(tokens) == 0 {
		return false
	}
	return unixEscalators[strings.ToLower(tokens[0])]
}

// StripElevationPrefix removes a leading escalation prefix so the spawner can
// apply its own. The remainder keeps its original quoting.
func StripElevationPrefix(command string) string {
	trimmed := strings.TrimSpace(command)
	for _, prefix := range []string{"sudo ", "pkexec ", "doas "} {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
	}
	return trimmed
}

// normalArgv wraps a command for the platform shell.
func normalArgv(goos, command string) []string {
	if goos == "windows" {
		return []string{"powershell", "-NoProfile", "-Command", command}
	}
	return []string{"sh", "-c", command}
}

// elevatedArgv wraps a command with the platform escalation mechanism. The
// escalation prefix is stripped first; each platform adds its own.
func elevatedArgv(goos, command string) []string {
	clean := StripElevationPrefix(command)
	switch goos {
	case "windows":
		escaped := strings.ReplaceAll(clean, `"`, "`\"")
		wrapped := fmt.Sprintf(
			"Start-Process powershell -ArgumentList '-NoProfile','-Command',\"%s\" -Verb RunAs -Wait -WindowStyle Hidden",
			escaped)
		return []string{"powershell", "-NoProfile", "-Command", wrapped}
	case "darwin":
		escaped := strings.ReplaceAll(clean, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		script := fmt.Sprintf("do shell script \"%s\" with administrator privileges", escaped)
		return []string{"osascript", "-e", script}
	default:
		if _, err := exec.LookPath("pkexec"); err == nil {
			return []string{"pkexec", "sh", "-c", clean}
		}
		// sudo -S reads the password from stdin; with stdin closed it fails
		// fast instead of hanging at a prompt.
		return []string{"sudo", "-S", "sh", "-c", clean}
	}
}
