package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

// DefaultMaxSearchResults caps one search_files invocation.
const DefaultMaxSearchResults = 100

// binaryExtensions are skipped without attempting a text read.
var binaryExtensions = map[string]struct{}{
	"pyc": {}, "so": {}, "o": {}, "a": {}, "png": {}, "jpg": {},
	"jpeg": {}, "gif": {}, "pdf": {}, "zip": {}, "tar": {}, "gz": {},
}

// SearchFilesTool greps the workspace subtree for a text pattern
type SearchFilesTool struct {
	BaseTool
}

// NewSearchFilesTool creates a new SearchFilesTool
func NewSearchFilesTool() *SearchFilesTool {
	return &SearchFilesTool{
		BaseTool: NewBaseTool("search_files", "Search for text content across multiple files in the workspace.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":          map[string]interface{}{"type": "string", "description": "Text pattern to search for."},
				"path":           map[string]interface{}{"type": "string", "default": ".", "description": "Directory to search in."},
				"file_pattern":   map[string]interface{}{"type": "string", "description": "Glob pattern to filter files."},
				"regex":          map[string]interface{}{"type": "boolean", "default": false},
				"case_sensitive": map[string]interface{}{"type": "boolean", "default": false},
				"max_results":    map[string]interface{}{"type": "integer", "default": 100},
			},
			"required": []string{"query"},
		}),
	}
}

func (t *SearchFilesTool) RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error) {
	query, ok := stringArg(args, "query")
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Query argument is required", nil)
	}
	pathArg, ok := stringArg(args, "path")
	if !ok || pathArg == "" {
		pathArg = "."
	}
	filePattern, _ := stringArg(args, "file_pattern")
	useRegex := boolArg(args, "regex", false)
	caseSensitive := boolArg(args, "case_sensitive", false)
	maxResults := intArg(args, "max_results", DefaultMaxSearchResults)
	if maxResults <= 0 {
		maxResults = DefaultMaxSearchResults
	}

	searchDir, err := toolCtx.Sandbox.Resolve(pathArg)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(searchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("Directory does not exist: %s", searchDir), nil)
		}
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "failed to stat directory", err)
	}
	if !info.IsDir() {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, fmt.Sprintf("Path is not a directory: %s", searchDir), nil)
	}

	pattern, err := compileQuery(query, useRegex, caseSensitive)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("Invalid search pattern: %v", err), err)
	}
	if filePattern != "" {
		if _, err := filepath.Match(filePattern, "probe"); err != nil {
			return "", apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("Invalid glob pattern: %s", filePattern), err)
		}
	}

	var results []string
	filesSearched := 0

	walkErr := filepath.WalkDir(searchDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if filePattern != "" {
			matched, _ := filepath.Match(filePattern, entry.Name())
			if !matched {
				return nil
			}
		}
		ext := strings.TrimPrefix(filepath.Ext(entry.Name()), ".")
		if _, skip := binaryExtensions[ext]; skip {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			// Unreadable or binary content, skip like any non-text file.
			return nil
		}
		filesSearched++

		for lineNum, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSuffix(line, "\r")
			if pattern.MatchString(line) {
				results = append(results, fmt.Sprintf("%s:%d: %s",
					toolCtx.Sandbox.Relative(path), lineNum+1, strings.TrimSpace(line)))
				if len(results) >= maxResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", apperrors.New(apperrors.ErrCodeFileOperation, "search failed", walkErr)
	}

	toolCtx.ToolLog(fmt.Sprintf("search '%s' in %s (%d files searched, %d matches)",
		query, pathArg, filesSearched, len(results)))

	if len(results) == 0 {
		return fmt.Sprintf("No matches found for '%s' in %s", query, pathArg), nil
	}

	suffix := ""
	if len(results) >= maxResults {
		suffix = fmt.Sprintf(" (showing first %d)", maxResults)
	}
	return fmt.Sprintf("Found %d matches%s:\n\n%s", len(results), suffix, strings.Join(results, "\n")), nil
}

func compileQuery(query string, useRegex, caseSensitive bool) (*regexp.Regexp, error) {
	expr := query
	if !useRegex {
		expr = regexp.QuoteMeta(query)
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}
