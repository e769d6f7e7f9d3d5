// Package audit appends security-relevant engine activity to a persistent
// per-user log file, mirroring every line to stderr. Audit failures are
// never fatal to the engine.
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Level tags an audit line
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelError    Level = "ERROR"
	LevelSecurity Level = "SECURITY"
	LevelTool     Level = "TOOL"
)

const lineTimeFormat = "2006-01-02 15:04:05.000"

// Logger writes timestamped audit lines. A nil Logger discards everything,
// so callers never need to guard their call sites.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	mirror io.Writer
}

// Open creates the parent directories of path and opens it for appending.
// The mirror (stderr when nil) receives a copy of every line.
func Open(path string, mirror io.Writer) (*Logger, error) {
	if mirror == nil {
		mirror = os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &Logger{file: file, path: path, mirror: mirror}, nil
}

// OpenDefault opens the audit log at the platform location.
func OpenDefault() (*Logger, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path, nil)
}

// DefaultPath returns the per-user audit log location for this platform.
func DefaultPath() (string, error) {
	return defaultPathFor(runtime.GOOS)
}

func defaultPathFor(goos string) (string, error) {
	switch goos {
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, "DeskAI", "logs", "desk-ai.log"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "DeskAI", "logs", "desk-ai.log"), nil
	default:
		if base := os.Getenv("XDG_DATA_HOME"); base != "" {
			return filepath.Join(base, "desk-ai", "logs", "desk-ai.log"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "desk-ai", "logs", "desk-ai.log"), nil
	}
}

// Path returns the log file location, or "" for a nil logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Logger) write(level Level, message string) {
	if l == nil {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s\n", time.Now().UTC().Format(lineTimeFormat), level, message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_, _ = l.file.WriteString(line)
	}
	if l.mirror != nil {
		_, _ = io.WriteString(l.mirror, line)
	}
}

// Info records an informational line.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

// Error records an error line.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

// Security records a security-relevant line.
func (l *Logger) Security(format string, args ...interface{}) {
	l.write(LevelSecurity, fmt.Sprintf(format, args...))
}

// ToolCall records one tool execution with its details.
func (l *Logger) ToolCall(tool, details string) {
	l.write(LevelTool, fmt.Sprintf("%s: %s", tool, details))
}

// ElevatedCommand records the decision on an elevated command attempt.
func (l *Logger) ElevatedCommand(approved bool, command string) {
	decision := "DENIED"
	if approved {
		decision = "APPROVED"
	}
	l.write(LevelSecurity, fmt.Sprintf("ELEVATED COMMAND %s: %s", decision, command))
}
