package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentrun-ai/agentrun/internal/orchestrator"
	"github.com/agentrun-ai/agentrun/internal/provider"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

var (
	runKind      string
	runModel     string
	runDir       string
	runDBPath    string
	runDocument  string
	runWorkspace string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Run a one-shot agent session",
	Long: `Run a single agent session from the command line and print its result.

When the agent asks clarifying questions, they are answered
interactively on stdin.

Examples:
  agentrun run "Summarize the architecture of this repo"
  agentrun run --kind database-reader --db ./app.db "How many users signed up last week?"
  agentrun run --kind ocr-reader --document ./invoice.txt "What is the total amount?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runKind, "kind", "k", string(types.KindCodebaseAnalysis), "Agent kind")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite database path (database-reader)")
	runCmd.Flags().StringVar(&runDocument, "document", "", "Document path (ocr-reader)")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "Workspace root (codebase-analysis)")
}

// kindConfigFromFlags builds the kind config for the requested kind.
func kindConfigFromFlags(workDir string) (types.KindConfig, error) {
	switch types.AgentKind(runKind) {
	case types.KindDatabaseReader:
		return types.DatabaseReaderConfig{DBPath: runDBPath}, nil
	case types.KindCodebaseAnalysis:
		root := runWorkspace
		if root == "" {
			root = workDir
		}
		return types.CodebaseAnalysisConfig{WorkspaceRoot: root}, nil
	case types.KindClarificationOnly:
		return types.ClarificationOnlyConfig{}, nil
	case types.KindOCRReader:
		return types.OCRReaderConfig{DocumentPath: runDocument}, nil
	default:
		return nil, fmt.Errorf("unknown agent kind: %q", runKind)
	}
}

func runOnce(cmd *cobra.Command, args []string) error {
	workDir := runDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = wd
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, workDir)
	if err != nil {
		return err
	}
	defer rt.bus.Close()

	kindConfig, err := kindConfigFromFlags(workDir)
	if err != nil {
		return err
	}

	req := &orchestrator.StartRequest{
		AgentKind:  types.AgentKind(runKind),
		KindConfig: kindConfig,
		Prompt:     strings.Join(args, " "),
	}
	if runModel != "" {
		req.Provider, req.Model = provider.ParseModelString(runModel)
	}

	sess, err := rt.orch.Start(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session %s started\n", sess.ID)

	stdin := bufio.NewReader(os.Stdin)
	for {
		rt.orch.Wait(sess.ID)

		current, err := rt.orch.Get(ctx, sess.ID)
		if err != nil {
			return err
		}

		switch current.Session.Status {
		case types.SessionCompleted:
			if current.Session.Result != nil {
				fmt.Println(*current.Session.Result)
			}
			return nil

		case types.SessionFailed:
			reason := "unknown"
			if current.Session.Error != nil {
				reason = *current.Session.Error
			}
			return fmt.Errorf("session failed: %s", reason)

		case types.SessionWaiting:
			questions, err := rt.orch.PendingQuestions(ctx, sess.ID)
			if err != nil {
				return err
			}
			answers := make([]types.Answer, 0, len(questions))
			for _, q := range questions {
				fmt.Printf("? %s\n", q.Prompt)
				if q.Description != "" {
					fmt.Printf("  (%s)\n", q.Description)
				}
				fmt.Print("> ")
				line, err := stdin.ReadString('\n')
				if err != nil {
					return err
				}
				answers = append(answers, types.Answer{
					QuestionID: q.ID,
					Text:       strings.TrimSpace(line),
				})
			}
			if err := rt.orch.SubmitAnswers(ctx, sess.ID, answers); err != nil {
				return err
			}

		default:
			return fmt.Errorf("session settled in unexpected state: %s", current.Session.Status)
		}
	}
}
