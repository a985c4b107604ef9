package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

const DocumentToolID = "read_document"

const documentMaxBytes = 512 * 1024

const documentDescription = `Reads the text content of the session's document.

Usage:
- No arguments required, the document is fixed per session
- Plain-text and markup formats are returned as-is
- Binary documents are rejected`

// DocumentTool reads the document attached to an ocr-reader session.
type DocumentTool struct{}

// NewDocumentTool creates a new document tool.
func NewDocumentTool() *DocumentTool { return &DocumentTool{} }

func (t *DocumentTool) ID() string             { return DocumentToolID }
func (t *DocumentTool) Description() string    { return documentDescription }
func (t *DocumentTool) Timeout() time.Duration { return 30 * time.Second }

func (t *DocumentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *DocumentTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	cfg, ok := inv.KindConfig.(types.OCRReaderConfig)
	if !ok {
		return nil, fmt.Errorf("read_document requires an ocr-reader session")
	}

	info, err := os.Stat(cfg.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("document not found: %s", cfg.DocumentPath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("document is a directory: %s", cfg.DocumentPath)
	}

	data, err := os.ReadFile(cfg.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	truncated := false
	if len(data) > documentMaxBytes {
		data = data[:documentMaxBytes]
		truncated = true
		// The cut can land inside a multi-byte rune; drop the partial
		// tail so a valid text document is not mistaken for binary.
		for i := 0; i < utf8.UTFMax-1 && len(data) > 0; i++ {
			if r, size := utf8.DecodeLastRune(data); r != utf8.RuneError || size > 1 {
				break
			}
			data = data[:len(data)-1]
		}
	}

	if !utf8.Valid(data) || strings.ContainsRune(string(data), 0) {
		return nil, fmt.Errorf("document is not a text file: %s", cfg.DocumentPath)
	}

	output := string(data)
	if truncated {
		output += "\n... document truncated\n"
	}

	return &Result{
		Output: output,
		Metadata: map[string]any{
			"path":      cfg.DocumentPath,
			"size":      info.Size(),
			"truncated": truncated,
		},
	}, nil
}
