package tool

import (
	"sync"

	"github.com/agentrun-ai/agentrun/internal/logging"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

// Registry manages tool registration and per-kind catalogs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// DefaultRegistry returns a registry with all builtin tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewReadTool())
	r.Register(NewWriteTool())
	r.Register(NewEditTool())
	r.Register(NewListTool())
	r.Register(NewGlobTool())
	r.Register(NewGrepTool())
	r.Register(NewPatchTool())
	r.Register(NewCommandTool())
	r.Register(NewFetchTool())
	r.Register(NewDBSchemaTool())
	r.Register(NewDBQueryTool())
	r.Register(NewDocumentTool())
	r.Register(NewAskUserTool())
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Debug().Str("tool", t.ID()).Msg("registering tool")
	r.tools[t.ID()] = t
}

// Get retrieves a tool by id.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// kindCatalog names the tools enabled for each agent kind. Every kind
// carries ask_user so any agent can pause for clarification.
var kindCatalog = map[types.AgentKind][]string{
	types.KindDatabaseReader: {
		AskUserToolID, DBSchemaToolID, DBQueryToolID,
	},
	types.KindCodebaseAnalysis: {
		AskUserToolID, ReadToolID, WriteToolID, EditToolID, ListToolID,
		GlobToolID, GrepToolID, PatchToolID, CommandToolID, FetchToolID,
	},
	types.KindClarificationOnly: {
		AskUserToolID,
	},
	types.KindOCRReader: {
		AskUserToolID, DocumentToolID, ReadToolID,
	},
}

// ForKind returns the tools enabled for an agent kind, in the catalog's
// declared order.
func (r *Registry) ForKind(kind types.AgentKind) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []Tool
	for _, id := range kindCatalog[kind] {
		if t, ok := r.tools[id]; ok {
			tools = append(tools, t)
		}
	}
	return tools
}
