package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/strata/internal/config"
	"github.com/papapumpkin/strata/internal/ui"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [manifest]",
	Short: "Show the compatibility rules after reconciliation",
	Long: `Declares the manifest's rules, reconciles the counts and prints every rule
with its maximum count and the per-layer restriction maps. With --json the
audit is printed on stdout in the same format as the exported
compatibility.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		_, col, err := loadCollection(manifestArg(args), cfg)
		if err != nil {
			return err
		}
		plan, err := prepare(cmd, col)
		if err != nil {
			return err
		}

		audit := plan.Registry.Export(plan.Restrictions)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(audit)
		}
		ui.New().Rules(audit)
		return nil
	},
}

func init() {
	rulesCmd.Flags().Bool("json", false, "print the audit as JSON")
	rulesCmd.Flags().Uint64("seed", 0, "seed for proportional rounding (default 1)")
	rootCmd.AddCommand(rulesCmd)
}
