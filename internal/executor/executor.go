// Package executor dispatches tool calls: it validates the request,
// enforces per-tool timeouts and the per-turn parallelism limit, and
// normalizes failures into a small taxonomy the session loop can persist.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrun-ai/agentrun/internal/logging"
	"github.com/agentrun-ai/agentrun/internal/tool"
)

var (
	// ErrUnknownTool is returned when the model calls a tool that is not
	// in the session's catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrArgumentInvalid is returned when tool arguments are not valid JSON.
	ErrArgumentInvalid = errors.New("invalid tool arguments")

	// ErrTimeout is returned when a tool exceeds its wall-clock limit.
	ErrTimeout = errors.New("tool execution timed out")
)

const defaultTimeout = 2 * time.Minute

// Options configures an Executor.
type Options struct {
	// Parallelism bounds how many tool calls run at once. Zero or
	// negative means 4.
	Parallelism int

	// Timeouts overrides per-tool wall-clock limits, keyed by tool id.
	Timeouts map[string]time.Duration

	// Sandbox, when set, is handed to every invocation so that
	// process-spawning tools can confine their children.
	Sandbox tool.Sandbox
}

// Executor runs tool calls against a registry.
type Executor struct {
	tools    *tool.Registry
	sem      chan struct{}
	timeouts map[string]time.Duration
	sandbox  tool.Sandbox
	log      zerolog.Logger
}

// New creates an Executor over the given registry.
func New(tools *tool.Registry, opts Options) *Executor {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Executor{
		tools:    tools,
		sem:      make(chan struct{}, parallelism),
		timeouts: opts.Timeouts,
		sandbox:  opts.Sandbox,
		log:      logging.With("executor"),
	}
}

// Outcome is the normalized result of one tool call. Exactly one of
// Result and Err is meaningful; Duration is always set.
type Outcome struct {
	Result   *tool.Result
	Err      error
	Duration time.Duration
}

// timeoutFor returns the wall-clock limit for a tool, preferring the
// configured override over the tool's own default.
func (e *Executor) timeoutFor(t tool.Tool) time.Duration {
	if d, ok := e.timeouts[t.ID()]; ok && d > 0 {
		return d
	}
	if d := t.Timeout(); d > 0 {
		return d
	}
	return defaultTimeout
}

// Execute runs one tool call to completion. It blocks while the
// parallelism limit is saturated, honors the tool's timeout, and maps
// panics and deadline failures onto the executor's error taxonomy.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage, inv *tool.Invocation) Outcome {
	t, ok := e.tools.Get(name)
	if !ok {
		return Outcome{Err: fmt.Errorf("%w: %s", ErrUnknownTool, name)}
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return Outcome{Err: fmt.Errorf("%w: not valid JSON", ErrArgumentInvalid)}
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
	defer func() { <-e.sem }()

	if inv.Sandbox == nil {
		inv.Sandbox = e.sandbox
	}

	timeout := e.timeoutFor(t)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.run(ctx, t, args, inv)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		e.log.Debug().
			Str("tool", name).
			Str("call", inv.CallID).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("tool call failed")
		return Outcome{Err: err, Duration: elapsed}
	}

	e.log.Debug().
		Str("tool", name).
		Str("call", inv.CallID).
		Dur("elapsed", elapsed).
		Msg("tool call completed")
	return Outcome{Result: result, Duration: elapsed}
}

// execResult carries one tool invocation's outcome across goroutines.
type execResult struct {
	result *tool.Result
	err    error
}

// run invokes the tool on its own goroutine and converts panics into
// errors so one bad tool cannot take down the session loop. The
// goroutine reports through a buffered channel and shares nothing with
// run's return path: after a timeout it may still be executing long
// after run has returned.
func (e *Executor) run(ctx context.Context, t tool.Tool, args json.RawMessage, inv *tool.Invocation) (*tool.Result, error) {
	ch := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- execResult{err: fmt.Errorf("tool %s panicked: %v", t.ID(), r)}
			}
		}()
		result, err := t.Execute(ctx, args, inv)
		ch <- execResult{result: result, err: err}
	}()
	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		// The goroutine keeps running until the tool notices its
		// context; the record still closes at the deadline.
		return nil, ctx.Err()
	}
}
