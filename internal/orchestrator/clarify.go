package orchestrator

import (
	"github.com/agentrun-ai/agentrun/internal/provider"
	"github.com/agentrun-ai/agentrun/internal/tool"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

// ClarifyPredicate decides whether a completion asks for user input. The
// default looks for an ask_user tool call; kinds can install their own
// detector on top of that.
type ClarifyPredicate func(result *provider.CompletionResult) bool

// DefaultClarifyPredicate reports whether the completion contains an
// ask_user tool call.
func DefaultClarifyPredicate(result *provider.CompletionResult) bool {
	for _, call := range result.ToolCalls {
		if call.Name == tool.AskUserToolID {
			return true
		}
	}
	return false
}

// clarifyFor returns the predicate installed for a kind, falling back to
// the default.
func (o *Orchestrator) clarifyFor(kind types.AgentKind) ClarifyPredicate {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.clarify[kind]; ok {
		return p
	}
	return DefaultClarifyPredicate
}

// SetClarifyPredicate installs a clarification detector for one agent
// kind, replacing the default.
func (o *Orchestrator) SetClarifyPredicate(kind types.AgentKind, p ClarifyPredicate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clarify[kind] = p
}
