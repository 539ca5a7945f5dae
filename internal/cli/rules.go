package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/rules"
)

func (a *app) newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate classification rule packs",
	}
	cmd.AddCommand(a.newRulesValidateCmd(), a.newRulesListCmd())
	return cmd
}

func (a *app) newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PACK...]",
		Short: "Validate rule pack files, or the embedded packs when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				engine, err := rules.Load(rules.Options{Logger: a.logger})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "embedded packs OK: %d rules (%s)\n",
					len(engine.Rules()), strings.Join(engine.PackNames(), ", "))
				return nil
			}
			for _, path := range args {
				pack, err := rules.LoadPackFile(path)
				if err != nil {
					return apperrors.NewInvalidRulePack(path, err.Error())
				}
				fmt.Fprintf(out, "%s: OK (%d rules)\n", path, len(pack.Rules))
			}
			return nil
		},
	}
}

func (a *app) newRulesListCmd() *cobra.Command {
	var (
		framework string
		rulePaths []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the effective rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := rules.Load(rules.Options{UserPaths: rulePaths, Logger: a.logger})
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), engine.Rules(), framework)
			return nil
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "only rules that apply to this framework")
	cmd.Flags().StringArrayVar(&rulePaths, "rules", nil, "user rule pack to include (repeatable)")
	return cmd
}

func printRules(w io.Writer, rs []rules.Rule, framework string) {
	fmt.Fprintf(w, "%-36s %-20s %-6s %-5s %s\n", "ID", "FAILURE TYPE", "CONF", "PRIO", "FRAMEWORK")
	for _, r := range rs {
		if framework != "" && r.Framework != "" && !strings.EqualFold(r.Framework, framework) {
			continue
		}
		scope := r.Framework
		if scope == "" {
			scope = "any"
		}
		fmt.Fprintf(w, "%-36s %-20s %-6.2f %-5d %s\n", r.ID, r.FailureType, r.Confidence, r.Priority, scope)
	}
}
