package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const FetchToolID = "fetch"

const fetchDescription = `Fetches content from a URL and returns it in the requested format.

Usage:
- The URL must be a fully-formed valid URL starting with http:// or https://
- Use format "markdown" (default) for readable content, "text" for plain text, "html" for raw HTML
- Responses are truncated past 2MB`

const fetchMaxResponse = 2 * 1024 * 1024

// FetchTool implements URL fetching.
type FetchTool struct {
	client *http.Client
}

// FetchInput represents the input for the fetch tool.
type FetchInput struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

// NewFetchTool creates a new fetch tool.
func NewFetchTool() *FetchTool {
	return &FetchTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *FetchTool) ID() string             { return FetchToolID }
func (t *FetchTool) Description() string    { return fetchDescription }
func (t *FetchTool) Timeout() time.Duration { return 30 * time.Second }

func (t *FetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch"
			},
			"format": {
				"type": "string",
				"description": "Output format: markdown, text or html (default: markdown)"
			}
		},
		"required": ["url"]
	}`)
}

func (t *FetchTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params FetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}
	if params.Format == "" {
		params.Format = "markdown"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "agentrun/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", params.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", params.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxResponse))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var output string
	switch params.Format {
	case "html":
		output = string(body)
	case "text":
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		doc.Find("script, style, noscript").Remove()
		output = strings.TrimSpace(doc.Text())
	case "markdown":
		converter := md.NewConverter("", true, nil)
		output, err = converter.ConvertString(string(body))
		if err != nil {
			return nil, fmt.Errorf("convert to markdown: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format: %s", params.Format)
	}

	return &Result{
		Output: output,
		Metadata: map[string]any{
			"url":    params.URL,
			"format": params.Format,
			"status": resp.StatusCode,
		},
	}, nil
}
