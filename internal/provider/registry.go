package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/agentrun-ai/agentrun/internal/logging"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

// Registry manages the configured provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Get retrieves an adapter by provider id.
func (r *Registry) Get(providerID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return a, nil
}

// IDs returns the registered provider ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// Initialize builds a registry from configuration. Providers whose
// credentials are absent are skipped with a log line rather than
// failing startup; at least one adapter must come up.
func Initialize(ctx context.Context, cfg *types.Config) (*Registry, error) {
	log := logging.With("provider")
	reg := NewRegistry()

	anthropicCfg := &AnthropicConfig{}
	openaiCfg := &OpenAIConfig{}
	arkCfg := &ArkConfig{}
	if cfg != nil {
		if pc, ok := cfg.Provider["anthropic"]; ok {
			anthropicCfg.APIKey = pc.APIKey
			anthropicCfg.BaseURL = pc.BaseURL
			anthropicCfg.Model = pc.Model
		}
		if pc, ok := cfg.Provider["openai"]; ok {
			openaiCfg.APIKey = pc.APIKey
			openaiCfg.BaseURL = pc.BaseURL
			openaiCfg.Model = pc.Model
			openaiCfg.ReasoningEffort = pc.ReasoningEffort
		}
		if pc, ok := cfg.Provider["ark"]; ok {
			arkCfg.APIKey = pc.APIKey
			arkCfg.BaseURL = pc.BaseURL
			arkCfg.Model = pc.Model
		}
	}

	if a, err := NewAnthropic(ctx, anthropicCfg); err == nil {
		reg.Register(a)
	} else {
		log.Debug().Err(err).Msg("anthropic adapter not configured")
	}
	if a, err := NewOpenAI(ctx, openaiCfg); err == nil {
		reg.Register(a)
	} else {
		log.Debug().Err(err).Msg("openai adapter not configured")
	}
	if a, err := NewArk(ctx, arkCfg); err == nil {
		reg.Register(a)
	} else {
		log.Debug().Err(err).Msg("ark adapter not configured")
	}

	if len(reg.IDs()) == 0 {
		return nil, fmt.Errorf("no provider configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY or ARK_API_KEY")
	}

	log.Info().Strs("providers", reg.IDs()).Msg("providers initialized")
	return reg, nil
}

// ParseModelString parses "provider/model" into its parts. A bare model
// id yields an empty provider.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// DefaultModel resolves the configured default provider/model pair,
// falling back to anthropic when unset.
func DefaultModel(cfg *types.Config) (providerID, modelID string) {
	if cfg != nil && cfg.Model != "" {
		providerID, modelID = ParseModelString(cfg.Model)
		if providerID != "" {
			return providerID, modelID
		}
	}
	if os.Getenv("ARK_API_KEY") != "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return "ark", os.Getenv("ARK_MODEL_ID")
	}
	return "anthropic", DefaultAnthropicModel
}
