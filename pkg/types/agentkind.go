package types

import (
	"encoding/json"
	"fmt"
)

// AgentKind identifies which tool catalog and configuration variant a
// session runs with.
type AgentKind string

const (
	KindDatabaseReader    AgentKind = "database-reader"
	KindCodebaseAnalysis  AgentKind = "codebase-analysis"
	KindClarificationOnly AgentKind = "clarification-only"
	KindOCRReader         AgentKind = "ocr-reader"
)

// Known reports whether the kind is one of the supported variants.
func (k AgentKind) Known() bool {
	switch k {
	case KindDatabaseReader, KindCodebaseAnalysis, KindClarificationOnly, KindOCRReader:
		return true
	}
	return false
}

// KindConfig is the closed set of per-kind configuration variants. Each
// variant carries only its own fields; the AgentKind tag on the session
// selects which one applies.
type KindConfig interface {
	Kind() AgentKind
	Validate() error
}

// DatabaseReaderConfig configures a database-reader session.
type DatabaseReaderConfig struct {
	DBPath string `json:"dbPath"`
}

func (c DatabaseReaderConfig) Kind() AgentKind { return KindDatabaseReader }

func (c DatabaseReaderConfig) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database-reader: dbPath is required")
	}
	return nil
}

// CodebaseAnalysisConfig configures a codebase-analysis session. An
// empty WorkspaceRoot falls back to the server's configured workspace.
type CodebaseAnalysisConfig struct {
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`
}

func (c CodebaseAnalysisConfig) Kind() AgentKind { return KindCodebaseAnalysis }

func (c CodebaseAnalysisConfig) Validate() error { return nil }

// ClarificationOnlyConfig configures a clarification-only session. The
// kind has no settings of its own.
type ClarificationOnlyConfig struct{}

func (c ClarificationOnlyConfig) Kind() AgentKind { return KindClarificationOnly }

func (c ClarificationOnlyConfig) Validate() error { return nil }

// OCRReaderConfig configures an ocr-reader session.
type OCRReaderConfig struct {
	DocumentPath string `json:"documentPath"`
}

func (c OCRReaderConfig) Kind() AgentKind { return KindOCRReader }

func (c OCRReaderConfig) Validate() error {
	if c.DocumentPath == "" {
		return fmt.Errorf("ocr-reader: documentPath is required")
	}
	return nil
}

// UnmarshalKindConfig decodes the config variant selected by kind.
func UnmarshalKindConfig(kind AgentKind, data json.RawMessage) (KindConfig, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	switch kind {
	case KindDatabaseReader:
		var c DatabaseReaderConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
		return c, nil
	case KindCodebaseAnalysis:
		var c CodebaseAnalysisConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
		return c, nil
	case KindClarificationOnly:
		var c ClarificationOnlyConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
		return c, nil
	case KindOCRReader:
		var c OCRReaderConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown agent kind: %s", kind)
	}
}
