// Package sandbox decides whether filesystem paths requested by tools are
// allowed to leave the workspace. Candidates are canonicalized before the
// boundary check, so traversal sequences and symlinks pointing outside the
// workspace are rejected rather than silently re-rooted.
package sandbox

import (
	"errors"
	"path/filepath"
	"strings"

	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

// ErrOutsideRoot is returned for any candidate that canonicalizes to a
// location outside the workspace.
var ErrOutsideRoot = errors.New("Access outside of workspace is denied.")

// Validator checks tool paths against the workspace boundary.
type Validator struct {
	root       string
	systemWide bool
}

// NewValidator canonicalizes root and builds a validator. With systemWide
// set, absolute candidates anywhere on the filesystem are allowed; relative
// candidates are always workspace-bound.
func NewValidator(root string, systemWide bool) (*Validator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "workspace root must not be empty", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid workspace root", err)
	}
	return &Validator{root: canonicalize(abs), systemWide: systemWide}, nil
}

// Root returns the canonical workspace root.
func (v *Validator) Root() string {
	return v.root
}

// SystemWide reports whether absolute paths outside the workspace are allowed.
func (v *Validator) SystemWide() bool {
	return v.systemWide
}

// Resolve canonicalizes candidate and enforces the workspace boundary.
// Relative candidates are joined to the root first. The returned path is
// absolute and symlink-free for every existing prefix.
func (v *Validator) Resolve(candidate string) (string, error) {
	if strings.TrimSpace(candidate) == "" {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "path must not be empty", nil)
	}

	if filepath.IsAbs(candidate) {
		resolved := canonicalize(candidate)
		if v.systemWide {
			return resolved, nil
		}
		if !v.within(resolved) {
			return "", ErrOutsideRoot
		}
		return resolved, nil
	}

	resolved := canonicalize(filepath.Join(v.root, candidate))
	if !v.within(resolved) {
		return "", ErrOutsideRoot
	}
	return resolved, nil
}

// ResolveForDelete is Resolve plus a refusal to target the workspace root.
func (v *Validator) ResolveForDelete(candidate string) (string, error) {
	resolved, err := v.Resolve(candidate)
	if err != nil {
		return "", err
	}
	if resolved == v.root {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Refusing to delete the workspace root.", nil)
	}
	return resolved, nil
}

// Relative rewrites an absolute path relative to the root for display.
// Paths outside the root are returned unchanged.
func (v *Validator) Relative(abs string) string {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}
	return rel
}

func (v *Validator) within(path string) bool {
	rel, err := filepath.Rel(v.root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// canonicalize resolves symlinks for the longest existing prefix of path and
// reattaches the remainder lexically.
func canonicalize(path string) string {
	path = filepath.Clean(path)

	suffix := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, suffix)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Join(current, suffix)
		}
		suffix = filepath.Join(filepath.Base(current), suffix)
		current = parent
	}
}
