// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tidwall/jsonc"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/agentrun/)
// 2. Project config (agentrun.jsonc in the working directory)
// 3. AGENTRUN_CONFIG file
// 4. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	globalDir := GetPaths().Config
	loadOnce(filepath.Join(globalDir, "agentrun.json"))
	loadOnce(filepath.Join(globalDir, "agentrun.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "agentrun.json"))
		loadOnce(filepath.Join(directory, "agentrun.jsonc"))
	}

	if configPath := os.Getenv("AGENTRUN_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	applyEnvOverrides(config)
	applyDefaults(config, directory)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.WorkspaceRoot != "" {
		target.WorkspaceRoot = source.WorkspaceRoot
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.MaxTurns > 0 {
		target.MaxTurns = source.MaxTurns
	}
	if source.ToolParallelism > 0 {
		target.ToolParallelism = source.ToolParallelism
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.ToolTimeoutMS != nil {
		if target.ToolTimeoutMS == nil {
			target.ToolTimeoutMS = make(map[string]int64)
		}
		for k, v := range source.ToolTimeoutMS {
			target.ToolTimeoutMS[k] = v
		}
	}
}

// applyEnvOverrides applies environment variables on top of file config.
func applyEnvOverrides(config *types.Config) {
	setProviderKey := func(id, key string) {
		pc := config.Provider[id]
		pc.APIKey = key
		config.Provider[id] = pc
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setProviderKey("anthropic", v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProviderKey("openai", v)
	}
	if v := os.Getenv("ARK_API_KEY"); v != "" {
		setProviderKey("ark", v)
	}

	if v := os.Getenv("AGENTRUN_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("AGENTRUN_WORKSPACE"); v != "" {
		config.WorkspaceRoot = v
	}
	if v := os.Getenv("AGENTRUN_MODEL"); v != "" {
		config.Model = v
	}
	if v := os.Getenv("AGENTRUN_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}

// applyDefaults fills unset fields.
func applyDefaults(config *types.Config, directory string) {
	if config.DataDir == "" {
		config.DataDir = GetPaths().Data
	}
	if config.WorkspaceRoot == "" {
		if directory != "" {
			config.WorkspaceRoot = directory
		} else if wd, err := os.Getwd(); err == nil {
			config.WorkspaceRoot = wd
		}
	}
}
