package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

const CommandToolID = "run_command"

const commandDescription = `Executes a shell command in the workspace.

Usage:
- The command runs with the workspace root as working directory
- Output is captured from stdout and stderr, truncated past 30000 bytes
- Commands that manage processes or escalate privileges are rejected`

const commandMaxOutput = 30000

// deniedCommands are never run regardless of arguments.
var deniedCommands = map[string]bool{
	"sudo":     true,
	"su":       true,
	"shutdown": true,
	"reboot":   true,
	"kill":     true,
	"killall":  true,
}

// CommandTool implements shell command execution.
type CommandTool struct{}

// CommandInput represents the input for the command tool.
type CommandInput struct {
	Command string `json:"command"`
}

// NewCommandTool creates a new command tool.
func NewCommandTool() *CommandTool { return &CommandTool{} }

func (t *CommandTool) ID() string             { return CommandToolID }
func (t *CommandTool) Description() string    { return commandDescription }
func (t *CommandTool) Timeout() time.Duration { return 120 * time.Second }

func (t *CommandTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The shell command to execute"
			}
		},
		"required": ["command"]
	}`)
}

func (t *CommandTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params CommandInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	if err := checkCommand(params.Command); err != nil {
		return nil, err
	}

	workDir, err := ResolvePath(inv.WorkspaceRoot, ".")
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", params.Command)
	cmd.Dir = workDir

	if inv.Sandbox != nil {
		if err := inv.Sandbox.Confine(cmd); err != nil {
			return nil, fmt.Errorf("apply sandbox: %w", err)
		}
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	output := buf.String()
	if len(output) > commandMaxOutput {
		output = output[:commandMaxOutput] + "\n... output truncated"
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			output += fmt.Sprintf("\n(exit status %d)", exitCode)
		} else {
			return nil, fmt.Errorf("run command: %w", runErr)
		}
	}

	return &Result{
		Output: output,
		Metadata: map[string]any{
			"command":  params.Command,
			"exitCode": exitCode,
		},
	}, nil
}

// checkCommand validates shell syntax and rejects denied programs. The
// script is parsed rather than string-matched so aliases like
// "x=sudo; $x" do not fool a substring check and malformed scripts fail
// here instead of at run time.
func checkCommand(command string) error {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return fmt.Errorf("invalid shell syntax: %w", err)
	}

	var denied string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name := wordLiteral(call.Args[0])
		if deniedCommands[name] {
			denied = name
			return false
		}
		return true
	})

	if denied != "" {
		return fmt.Errorf("command not allowed: %s", denied)
	}
	return nil
}

// wordLiteral extracts the literal text of a word, empty if dynamic.
func wordLiteral(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		lit, ok := part.(*syntax.Lit)
		if !ok {
			return ""
		}
		sb.WriteString(lit.Value)
	}
	return sb.String()
}
