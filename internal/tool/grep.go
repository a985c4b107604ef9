package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const GrepToolID = "grep"

const grepDescription = `Searches file contents inside the workspace with a regular expression.

Usage:
- Supports Go regexp syntax (e.g., "log.*Error", "func\\s+\\w+")
- Filter files with the glob parameter (e.g., "*.go", "**/*.ts")
- Returns matching lines with file paths and line numbers`

const (
	grepMaxMatches  = 200
	grepMaxLineLen  = 512
	grepMaxFileSize = 4 * 1024 * 1024
)

// GrepTool implements content search.
type GrepTool struct{}

// GrepInput represents the input for the grep tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Glob    string `json:"glob,omitempty"`
}

// NewGrepTool creates a new grep tool.
func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) ID() string             { return GrepToolID }
func (t *GrepTool) Description() string    { return grepDescription }
func (t *GrepTool) Timeout() time.Duration { return 60 * time.Second }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regular expression to search for"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in (default: workspace root)"
			},
			"glob": {
				"type": "string",
				"description": "Glob pattern to filter which files are searched"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if params.Path == "" {
		params.Path = "."
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	base, err := ResolvePath(inv.WorkspaceRoot, params.Path)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	matched := 0

	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if matched >= grepMaxMatches {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		if params.Glob != "" {
			ok, err := doublestar.Match(params.Glob, rel)
			if err != nil || !ok {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil || info.Size() > grepMaxFileSize {
			return nil
		}

		matched += grepFile(&sb, re, path, filepath.Join(params.Path, rel), grepMaxMatches-matched)
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return nil, walkErr
	}

	output := sb.String()
	if matched >= grepMaxMatches {
		output += fmt.Sprintf("... truncated to %d matches\n", grepMaxMatches)
	}

	return &Result{
		Output: output,
		Metadata: map[string]any{
			"pattern": params.Pattern,
			"matches": matched,
		},
	}, nil
}

// grepFile appends up to budget matching lines from one file.
func grepFile(sb *strings.Builder, re *regexp.Regexp, path, display string, budget int) int {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	count := 0
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if len(line) > grepMaxLineLen {
			line = line[:grepMaxLineLen] + "..."
		}
		fmt.Fprintf(sb, "%s:%d:%s\n", display, lineNum, line)
		count++
		if count >= budget {
			break
		}
	}
	return count
}
