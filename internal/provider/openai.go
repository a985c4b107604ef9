package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// ReasoningEffort constrains reasoning on o-series models
	// ("low", "medium" or "high"). Empty leaves the API default.
	ReasoningEffort string
}

// NewOpenAI creates the OpenAI adapter.
func NewOpenAI(ctx context.Context, cfg *OpenAIConfig) (Adapter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = DefaultOpenAIModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	oaiCfg := &openai.ChatModelConfig{
		APIKey: apiKey,
		Model:  modelID,
		// MaxCompletionTokens keeps newer reasoning models happy.
		MaxCompletionTokens: &maxTokens,
	}
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.ReasoningEffort != "" {
		oaiCfg.ReasoningEffort = openai.ReasoningEffortLevel(cfg.ReasoningEffort)
	}

	chatModel, err := openai.NewChatModel(ctx, oaiCfg)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}

	return &einoAdapter{id: "openai", chatModel: chatModel}, nil
}
