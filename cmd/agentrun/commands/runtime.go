package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/agentrun-ai/agentrun/internal/config"
	"github.com/agentrun-ai/agentrun/internal/event"
	"github.com/agentrun-ai/agentrun/internal/executor"
	"github.com/agentrun-ai/agentrun/internal/orchestrator"
	"github.com/agentrun-ai/agentrun/internal/provider"
	"github.com/agentrun-ai/agentrun/internal/storage"
	"github.com/agentrun-ai/agentrun/internal/store"
	"github.com/agentrun-ai/agentrun/internal/tool"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

// runtime bundles the wired application components.
type runtime struct {
	cfg  *types.Config
	bus  *event.Bus
	orch *orchestrator.Orchestrator
}

// buildRuntime loads configuration and wires storage, providers, tools
// and the orchestrator together.
func buildRuntime(ctx context.Context, workDir string) (*runtime, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = paths.Data
	}

	st := store.New(storage.New(filepath.Join(dataDir, "storage")))

	providers, err := provider.Initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tools := tool.DefaultRegistry()

	timeouts := make(map[string]time.Duration, len(cfg.ToolTimeoutMS))
	for name, ms := range cfg.ToolTimeoutMS {
		timeouts[name] = time.Duration(ms) * time.Millisecond
	}
	exec := executor.New(tools, executor.Options{
		Parallelism: cfg.ToolParallelism,
		Timeouts:    timeouts,
	})

	bus := event.NewBus()

	defaultProvider, defaultModel := provider.DefaultModel(cfg)
	orch := orchestrator.New(st, providers, tools, exec, bus, orchestrator.Options{
		MaxTurns:        cfg.MaxTurns,
		DefaultProvider: defaultProvider,
		DefaultModel:    defaultModel,
		WorkspaceRoot:   cfg.WorkspaceRoot,
	})

	return &runtime{cfg: cfg, bus: bus, orch: orch}, nil
}
