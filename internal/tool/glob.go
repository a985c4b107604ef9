package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const GlobToolID = "glob"

const globDescription = `Fast file pattern matching inside the workspace.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths sorted by modification time (newest first)
- Use this tool when you need to find files by name patterns`

const globMaxResults = 500

// GlobTool implements file pattern matching.
type GlobTool struct{}

// GlobInput represents the input for the glob tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates a new glob tool.
func NewGlobTool() *GlobTool { return &GlobTool{} }

func (t *GlobTool) ID() string             { return GlobToolID }
func (t *GlobTool) Description() string    { return globDescription }
func (t *GlobTool) Timeout() time.Duration { return 30 * time.Second }

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in (default: workspace root)"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params GlobInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if params.Path == "" {
		params.Path = "."
	}

	base, err := ResolvePath(inv.WorkspaceRoot, params.Path)
	if err != nil {
		return nil, err
	}

	type match struct {
		path string
		mod  int64
	}
	var matches []match

	err = doublestar.GlobWalk(os.DirFS(base), params.Pattern, func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		matches = append(matches, match{path: path, mod: info.ModTime().UnixMilli()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", params.Pattern, err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].mod > matches[j].mod })

	truncated := false
	if len(matches) > globMaxResults {
		matches = matches[:globMaxResults]
		truncated = true
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(params.Path, m.path)
	}

	output := strings.Join(paths, "\n")
	if truncated {
		output += fmt.Sprintf("\n... truncated to %d results", globMaxResults)
	}

	return &Result{
		Output: output,
		Metadata: map[string]any{
			"pattern": params.Pattern,
			"matches": len(paths),
		},
	}, nil
}
