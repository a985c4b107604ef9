package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const WriteToolID = "write_file"

const writeDescription = `Writes content to a file in the project workspace.

Usage:
- Creates the file if it does not exist, including parent directories
- Overwrites the existing content otherwise
- The path must stay inside the workspace root`

// WriteTool implements workspace file writing.
type WriteTool struct{}

// WriteInput represents the input for the write tool.
type WriteInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewWriteTool creates a new write tool.
func NewWriteTool() *WriteTool { return &WriteTool{} }

func (t *WriteTool) ID() string             { return WriteToolID }
func (t *WriteTool) Description() string    { return writeDescription }
func (t *WriteTool) Timeout() time.Duration { return 30 * time.Second }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The path of the file to write"
			},
			"content": {
				"type": "string",
				"description": "The full content to write"
			}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params WriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	path, err := ResolvePath(inv.WorkspaceRoot, params.Path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", params.Path, err)
	}

	return &Result{
		Output: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.Path),
		Metadata: map[string]any{
			"path":  params.Path,
			"bytes": len(params.Content),
		},
	}, nil
}
