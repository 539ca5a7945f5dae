// Package cli wires the analysis pipeline behind the execintel command
// tree. Command implementations return structured errors so that Execute
// can map them onto exit codes; an unstructured error escaping a command
// came from cobra's own flag or argument parsing and counts as a
// configuration mistake.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/execintel/internal/errors"
)

// BuildInfo carries the version stamps injected at build time.
type BuildInfo struct {
	Version string
	Commit  string
	BuiltBy string
}

// app holds the state shared across commands for one invocation.
type app struct {
	info       BuildInfo
	logger     *zap.Logger
	gateFailed bool
}

// Execute runs the command tree against args (os.Args[1:] in production)
// and returns the process exit code: 0 when the gate passed, 1 when it
// failed, 2 for configuration errors, 3 for internal ones.
func Execute(ctx context.Context, info BuildInfo, logger *zap.Logger, args []string) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{info: info, logger: logger}

	root := a.newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if se := apperrors.AsStructured(err); se != nil {
			if se.Suggestion != "" {
				fmt.Fprintf(os.Stderr, "Hint: %s\n", se.Suggestion)
			}
			return apperrors.ExitCode(se)
		}
		return apperrors.ExitConfig
	}
	if a.gateFailed {
		return apperrors.ExitGateFailed
	}
	return apperrors.ExitOK
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "execintel",
		Short: "Classify test automation failures from their logs",
		Long: `execintel turns raw test automation logs into classified, evidence-backed
failure analyses. Every failed test is labeled as a product defect,
automation defect, environment issue, or configuration issue, with a
calibrated confidence, the code site that failed, and cross-test
correlation groups, so CI can gate on what actually broke.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.newAnalyzeCmd(),
		a.newRulesCmd(),
		a.newPatternsCmd(),
		a.newVersionCmd(),
	)
	return root
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "execintel %s (commit %s, built by %s)\n",
				a.info.Version, a.info.Commit, a.info.BuiltBy)
		},
	}
}
