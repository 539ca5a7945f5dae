package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tareqmamari/execintel/internal/config"
	apperrors "github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
	"github.com/tareqmamari/execintel/internal/pattern"
)

func (a *app) newPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and triage recurring failure patterns",
	}
	cmd.AddCommand(a.newPatternsListCmd(), a.newPatternsSetStatusCmd())
	return cmd
}

func (a *app) newPatternsListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked failure patterns, most recently seen first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter model.PatternStatus
			if status != "" {
				ps, ok := model.ParsePatternStatus(status)
				if !ok {
					return apperrors.NewInvalidFlag("status", fmt.Sprintf("unknown pattern status %q", status))
				}
				filter = ps
			}

			store, err := openAdminStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			patterns, err := store.List(cmd.Context(), filter, limit)
			if err != nil {
				return apperrors.NewInternalError(fmt.Sprintf("failed to list patterns: %v", err))
			}
			printPatterns(cmd.OutOrStdout(), patterns)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by triage status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum patterns to list, 0 = all")
	return cmd
}

func (a *app) newPatternsSetStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "set-status HASH STATUS",
		Short: "Move a pattern through its triage lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := model.ParsePatternStatus(args[1])
			if !ok {
				return apperrors.NewInvalidFlag("status",
					fmt.Sprintf("unknown pattern status %q (expected one of %v)", args[1], model.PatternStatuses))
			}

			store, err := openAdminStore(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetStatus(cmd.Context(), args[0], status); err != nil {
				return apperrors.NewInternalError(err.Error())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pattern %s is now %s\n", args[0], status)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

// openAdminStore opens the persistent pattern store named by the config.
// Triage commands have no in-memory fallback; without the store file they
// have nothing to operate on.
func openAdminStore(configPath string) (pattern.AdminStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, apperrors.NewInvalidConfig(err.Error())
	}
	store, err := pattern.NewSQLiteStore(cfg.Pattern.StorePath)
	if err != nil {
		return nil, apperrors.NewStorageUnavailable(err.Error())
	}
	return store, nil
}

func printPatterns(w io.Writer, patterns []*model.Pattern) {
	if len(patterns) == 0 {
		fmt.Fprintln(w, "no patterns recorded")
		return
	}
	fmt.Fprintf(w, "%-16s %-6s %-14s %-16s %-19s %s\n",
		"HASH", "COUNT", "STATUS", "SIGNAL", "LAST SEEN", "MESSAGE")
	for _, p := range patterns {
		fmt.Fprintf(w, "%-16s %-6d %-14s %-16s %-19s %s\n",
			p.PatternHash, p.OccurrenceCount, p.Status, p.SignalType,
			p.LastSeen.UTC().Format("2006-01-02 15:04:05"), truncateMessage(p.NormalizedMessage, 80))
	}
}

func truncateMessage(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
