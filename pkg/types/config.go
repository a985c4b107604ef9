package types

// Config is the application configuration loaded by internal/config.
type Config struct {
	// DataDir is where session state is persisted.
	DataDir string `json:"dataDir,omitempty"`

	// WorkspaceRoot bounds all filesystem-touching tools.
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`

	// Model is the default "provider/model" pair.
	Model string `json:"model,omitempty"`

	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`

	// MaxTurns caps control-loop iterations per session.
	MaxTurns int `json:"maxTurns,omitempty"`

	// ToolParallelism bounds concurrent tool executions within a turn.
	ToolParallelism int `json:"toolParallelism,omitempty"`

	// ToolTimeoutMS overrides the per-tool default timeout, keyed by
	// tool name.
	ToolTimeoutMS map[string]int64 `json:"toolTimeoutMs,omitempty"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`

	// ReasoningEffort is the provider-specific reasoning knob for
	// models that support it ("low", "medium", "high").
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}
