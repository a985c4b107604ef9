package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const ListToolID = "list_files"

const listDescription = `Lists files and directories at a path inside the workspace.

Usage:
- The path parameter defaults to the workspace root
- Directories are suffixed with a trailing slash
- Hidden entries (dotfiles) are included`

// ListTool implements directory listing.
type ListTool struct{}

// ListInput represents the input for the list tool.
type ListInput struct {
	Path string `json:"path,omitempty"`
}

// NewListTool creates a new list tool.
func NewListTool() *ListTool { return &ListTool{} }

func (t *ListTool) ID() string             { return ListToolID }
func (t *ListTool) Description() string    { return listDescription }
func (t *ListTool) Timeout() time.Duration { return 30 * time.Second }

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The directory to list (default: workspace root)"
			}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params ListInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Path == "" {
		params.Path = "."
	}

	path, err := ResolvePath(inv.WorkspaceRoot, params.Path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", params.Path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return &Result{
		Output: strings.Join(names, "\n"),
		Metadata: map[string]any{
			"path":    params.Path,
			"entries": len(names),
		},
	}, nil
}
