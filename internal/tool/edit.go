package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

const EditToolID = "edit_file"

const editDescription = `Performs exact string replacements in files.

Usage:
- The old_string must exist in the file (exact match required)
- The new_string will replace old_string
- Use replace_all to replace all occurrences
- The edit will FAIL if old_string is not unique (unless using replace_all)`

// EditTool implements exact-match file editing.
type EditTool struct{}

// EditInput represents the input for the edit tool.
type EditInput struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// NewEditTool creates a new edit tool.
func NewEditTool() *EditTool { return &EditTool{} }

func (t *EditTool) ID() string             { return EditToolID }
func (t *EditTool) Description() string    { return editDescription }
func (t *EditTool) Timeout() time.Duration { return 30 * time.Second }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The path of the file to modify"
			},
			"old_string": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"new_string": {
				"type": "string",
				"description": "The replacement text"
			},
			"replace_all": {
				"type": "boolean",
				"description": "Replace every occurrence instead of requiring uniqueness"
			}
		},
		"required": ["path", "old_string", "new_string"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.OldString == params.NewString {
		return nil, fmt.Errorf("old_string and new_string are identical")
	}

	path, err := ResolvePath(inv.WorkspaceRoot, params.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", params.Path)
	}
	content := string(data)

	count := strings.Count(content, params.OldString)
	switch {
	case count == 0:
		return nil, fmt.Errorf("old_string not found in %s%s", params.Path, closestLineHint(content, params.OldString))
	case count > 1 && !params.ReplaceAll:
		return nil, fmt.Errorf("old_string appears %d times in %s; use replace_all or add surrounding context", count, params.Path)
	}

	replaced := count
	if params.ReplaceAll {
		content = strings.ReplaceAll(content, params.OldString, params.NewString)
	} else {
		content = strings.Replace(content, params.OldString, params.NewString, 1)
		replaced = 1
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", params.Path, err)
	}

	return &Result{
		Output: fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, params.Path),
		Metadata: map[string]any{
			"path":         params.Path,
			"replacements": replaced,
		},
	}, nil
}

// closestLineHint finds the file line nearest to the missed old_string
// so the model can correct small whitespace mismatches.
func closestLineHint(content, target string) string {
	const maxDistance = 20

	best := ""
	bestDist := maxDistance + 1
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) > 500 {
			continue
		}
		dist := levenshtein.ComputeDistance(trimmed, strings.TrimSpace(target))
		if dist < bestDist {
			bestDist = dist
			best = trimmed
		}
	}

	if best == "" {
		return ""
	}
	return fmt.Sprintf("; closest match: %q", best)
}
