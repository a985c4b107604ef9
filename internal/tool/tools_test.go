package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

func testInvocation(root string) *Invocation {
	return &Invocation{
		SessionID:     "test-session",
		CallID:        "call_test",
		WorkspaceRoot: root,
		KindConfig:    types.CodebaseAnalysisConfig{WorkspaceRoot: root},
	}
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func args(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestReadTool(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	inv := testInvocation(root)

	result, err := NewReadTool().Execute(context.Background(),
		args(t, ReadInput{Path: "main.go"}), inv)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "1\tpackage main")
	assert.Contains(t, result.Output, "3\tfunc main() {}")
	assert.Equal(t, 3, result.Metadata["lines"])
}

func TestReadTool_OffsetLimit(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	writeFile(t, root, "data.txt", sb.String())
	inv := testInvocation(root)

	result, err := NewReadTool().Execute(context.Background(),
		args(t, ReadInput{Path: "data.txt", Offset: 4, Limit: 2}), inv)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "line 4")
	assert.Contains(t, result.Output, "line 5")
	assert.NotContains(t, result.Output, "line 3")
	assert.NotContains(t, result.Output, "line 6")
}

func TestReadTool_MissingFile(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewReadTool().Execute(context.Background(),
		args(t, ReadInput{Path: "nope.txt"}), inv)
	assert.ErrorContains(t, err, "file not found")
}

func TestReadTool_EscapeRejected(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewReadTool().Execute(context.Background(),
		args(t, ReadInput{Path: "../../etc/passwd"}), inv)
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestWriteTool(t *testing.T) {
	root := t.TempDir()
	inv := testInvocation(root)

	_, err := NewWriteTool().Execute(context.Background(),
		args(t, WriteInput{Path: "new/dir/out.txt", Content: "hello"}), inv)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "new", "dir", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestEditTool(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha beta gamma\n")
	inv := testInvocation(root)

	_, err := NewEditTool().Execute(context.Background(),
		args(t, EditInput{Path: "a.txt", OldString: "beta", NewString: "BETA"}), inv)
	require.NoError(t, err)

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	assert.Equal(t, "alpha BETA gamma\n", string(data))
}

func TestEditTool_AmbiguousWithoutReplaceAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x x x\n")
	inv := testInvocation(root)

	_, err := NewEditTool().Execute(context.Background(),
		args(t, EditInput{Path: "a.txt", OldString: "x", NewString: "y"}), inv)
	assert.ErrorContains(t, err, "replace_all")

	_, err = NewEditTool().Execute(context.Background(),
		args(t, EditInput{Path: "a.txt", OldString: "x", NewString: "y", ReplaceAll: true}), inv)
	require.NoError(t, err)

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	assert.Equal(t, "y y y\n", string(data))
}

func TestEditTool_NotFoundHints(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "func handleRequest() error {\n\treturn nil\n}\n")
	inv := testInvocation(root)

	_, err := NewEditTool().Execute(context.Background(),
		args(t, EditInput{Path: "a.go", OldString: "func handleRequests() error {", NewString: "x"}), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closest match")
	assert.Contains(t, err.Error(), "handleRequest")
}

func TestGlobTool(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "sub/b.go", "package b\n")
	writeFile(t, root, "sub/c.txt", "text\n")
	inv := testInvocation(root)

	result, err := NewGlobTool().Execute(context.Background(),
		args(t, GlobInput{Pattern: "**/*.go"}), inv)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "a.go")
	assert.Contains(t, result.Output, filepath.Join("sub", "b.go"))
	assert.NotContains(t, result.Output, "c.txt")
}

func TestGrepTool(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.go", "package x\n\nfunc Needle() {}\n")
	writeFile(t, root, "y.go", "package y\n")
	inv := testInvocation(root)

	result, err := NewGrepTool().Execute(context.Background(),
		args(t, GrepInput{Pattern: "Needle"}), inv)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "x.go")
	assert.Contains(t, result.Output, "func Needle()")
	assert.NotContains(t, result.Output, "y.go")
}

func TestGrepTool_InvalidRegex(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewGrepTool().Execute(context.Background(),
		args(t, GrepInput{Pattern: "("}), inv)
	assert.Error(t, err)
}

func TestListTool(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.txt", "1")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "subdir"), 0755))
	inv := testInvocation(root)

	result, err := NewListTool().Execute(context.Background(),
		args(t, ListInput{}), inv)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "one.txt")
	assert.Contains(t, result.Output, "subdir")
}

func TestCommandTool(t *testing.T) {
	root := t.TempDir()
	inv := testInvocation(root)

	result, err := NewCommandTool().Execute(context.Background(),
		args(t, CommandInput{Command: "echo hello"}), inv)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "hello")
	assert.Equal(t, 0, result.Metadata["exitCode"])
}

func TestCommandTool_Denied(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewCommandTool().Execute(context.Background(),
		args(t, CommandInput{Command: "sudo rm -rf /"}), inv)
	assert.ErrorContains(t, err, "command not allowed")

	// Denied even when buried in a pipeline.
	_, err = NewCommandTool().Execute(context.Background(),
		args(t, CommandInput{Command: "echo x | sudo tee /etc/hosts"}), inv)
	assert.ErrorContains(t, err, "command not allowed")
}

func TestCommandTool_SyntaxError(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewCommandTool().Execute(context.Background(),
		args(t, CommandInput{Command: "echo 'unterminated"}), inv)
	assert.ErrorContains(t, err, "invalid shell syntax")
}

func TestCommandTool_ExitStatus(t *testing.T) {
	inv := testInvocation(t.TempDir())

	result, err := NewCommandTool().Execute(context.Background(),
		args(t, CommandInput{Command: "exit 3"}), inv)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Metadata["exitCode"])
	assert.Contains(t, result.Output, "exit status 3")
}

func TestAskUserTool_NeverExecutes(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewAskUserTool().Execute(context.Background(),
		json.RawMessage(`{"questions":[{"prompt":"?"}]}`), inv)
	assert.Error(t, err)
}

func TestParseAskUserInput(t *testing.T) {
	input, err := ParseAskUserInput(json.RawMessage(
		`{"questions":[{"prompt":"Which env?","description":"staging or prod"}]}`))
	require.NoError(t, err)
	require.Len(t, input.Questions, 1)
	assert.Equal(t, "Which env?", input.Questions[0].Prompt)

	_, err = ParseAskUserInput(json.RawMessage(`{"questions":[]}`))
	assert.Error(t, err)

	_, err = ParseAskUserInput(json.RawMessage(`{"questions":[{"prompt":""}]}`))
	assert.Error(t, err)
}

func TestRegistry_ForKind(t *testing.T) {
	r := DefaultRegistry()

	ids := func(kind types.AgentKind) []string {
		var out []string
		for _, tl := range r.ForKind(kind) {
			out = append(out, tl.ID())
		}
		return out
	}

	assert.ElementsMatch(t, []string{AskUserToolID, DBSchemaToolID, DBQueryToolID},
		ids(types.KindDatabaseReader))
	assert.Equal(t, []string{AskUserToolID}, ids(types.KindClarificationOnly))
	assert.ElementsMatch(t, []string{AskUserToolID, DocumentToolID, ReadToolID},
		ids(types.KindOCRReader))
	assert.Contains(t, ids(types.KindCodebaseAnalysis), CommandToolID)
	assert.Contains(t, ids(types.KindCodebaseAnalysis), AskUserToolID)
	assert.NotContains(t, ids(types.KindCodebaseAnalysis), DBQueryToolID)
}

func TestDocumentTool(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("Total: 415.20 EUR\n"), 0644))

	inv := &Invocation{
		SessionID:  "test-session",
		KindConfig: types.OCRReaderConfig{DocumentPath: docPath},
	}

	result, err := NewDocumentTool().Execute(context.Background(), json.RawMessage(`{}`), inv)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "415.20 EUR")
}

func TestDocumentTool_WrongKind(t *testing.T) {
	inv := testInvocation(t.TempDir())

	_, err := NewDocumentTool().Execute(context.Background(), json.RawMessage(`{}`), inv)
	assert.ErrorContains(t, err, "ocr-reader")
}

func TestDocumentTool_TruncationKeepsRuneBoundary(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "large.txt")

	// The size cap lands inside the two-byte "é", leaving a broken tail.
	content := strings.Repeat("a", documentMaxBytes-1) + "économie"
	require.NoError(t, os.WriteFile(docPath, []byte(content), 0644))

	inv := &Invocation{KindConfig: types.OCRReaderConfig{DocumentPath: docPath}}

	result, err := NewDocumentTool().Execute(context.Background(), json.RawMessage(`{}`), inv)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(result.Output))
	assert.Equal(t, true, result.Metadata["truncated"])
	assert.Contains(t, result.Output, "document truncated")
}

func TestDocumentTool_Binary(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(docPath, []byte{0x00, 0x01, 0xff, 0xfe}, 0644))

	inv := &Invocation{KindConfig: types.OCRReaderConfig{DocumentPath: docPath}}

	_, err := NewDocumentTool().Execute(context.Background(), json.RawMessage(`{}`), inv)
	assert.ErrorContains(t, err, "not a text file")
}
