package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const PatchToolID = "apply_patch"

const patchDescription = `Applies a patch to a file in the workspace.

Usage:
- The patch parameter uses the standard patch text format produced by diff-match-patch
- Hunks are applied with fuzzy matching, so small line drift is tolerated
- Fails if any hunk cannot be placed`

// PatchTool implements patch application.
type PatchTool struct{}

// PatchInput represents the input for the patch tool.
type PatchInput struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

// NewPatchTool creates a new patch tool.
func NewPatchTool() *PatchTool { return &PatchTool{} }

func (t *PatchTool) ID() string             { return PatchToolID }
func (t *PatchTool) Description() string    { return patchDescription }
func (t *PatchTool) Timeout() time.Duration { return 30 * time.Second }

func (t *PatchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The path of the file to patch"
			},
			"patch": {
				"type": "string",
				"description": "The patch text to apply"
			}
		},
		"required": ["path", "patch"]
	}`)
}

func (t *PatchTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params PatchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	path, err := ResolvePath(inv.WorkspaceRoot, params.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", params.Path)
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(params.Patch)
	if err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("patch contains no hunks")
	}

	patched, applied := dmp.PatchApply(patches, string(data))
	for i, ok := range applied {
		if !ok {
			return nil, fmt.Errorf("hunk %d did not apply to %s", i+1, params.Path)
		}
	}

	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", params.Path, err)
	}

	return &Result{
		Output: fmt.Sprintf("Applied %d hunk(s) to %s", len(applied), params.Path),
		Metadata: map[string]any{
			"path":  params.Path,
			"hunks": len(applied),
		},
	}, nil
}
