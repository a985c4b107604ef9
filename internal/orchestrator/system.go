package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

const basePrompt = `You are an autonomous agent running inside the agentrun server.
You work in discrete turns: read the task, use your tools to make progress,
and produce a final answer when the task is done.

IMPORTANT: when information only the user has is missing, call the ask_user
tool instead of guessing. Ask all related questions in one call.`

// kindPrompts holds the per-kind instruction block.
var kindPrompts = map[types.AgentKind]string{
	types.KindDatabaseReader: `You answer questions about a SQLite database.
Inspect the schema with db_schema before querying. Only read access is
available; queries that modify data will be rejected.`,

	types.KindCodebaseAnalysis: `You analyze and modify a source code workspace.
Prefer grep and glob to locate code before reading whole files. All paths are
relative to the workspace root; access outside it is denied.`,

	types.KindClarificationOnly: `You gather requirements from the user. You have
no other tools; your job is to ask focused questions with ask_user and then
summarize what you learned as your final answer.`,

	types.KindOCRReader: `You extract and interpret the content of a single
document. Read it with read_document, then answer the task from its content.`,
}

// buildSystemPrompt assembles the system prompt for a session.
func buildSystemPrompt(sess *types.Session) string {
	var parts []string

	parts = append(parts, basePrompt)

	if kp, ok := kindPrompts[sess.AgentKind]; ok {
		parts = append(parts, kp)
	}

	parts = append(parts, environmentContext(sess))

	return strings.Join(parts, "\n\n")
}

// environmentContext describes the session's fixed surroundings.
func environmentContext(sess *types.Session) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&sb, "Agent kind: %s\n", sess.AgentKind)

	switch cfg := sess.KindConfig.(type) {
	case types.DatabaseReaderConfig:
		fmt.Fprintf(&sb, "Database: %s\n", cfg.DBPath)
	case types.CodebaseAnalysisConfig:
		fmt.Fprintf(&sb, "Workspace root: %s\n", cfg.WorkspaceRoot)
	case types.OCRReaderConfig:
		fmt.Fprintf(&sb, "Document: %s\n", cfg.DocumentPath)
	}

	sb.WriteString("</environment>")
	return sb.String()
}
