package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/config"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/forge"
	"github.com/papapumpkin/strata/internal/ui"
)

var errInvalid = errors.New("manifest is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Check a manifest without generating",
	Long: `Loads the manifest, declares its rules and reconciles every configuration,
reporting all problems found. With --plan the reconciled trait counts are
printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printer := ui.New()
		path := manifestArg(args)

		m, col, err := loadCollection(path, cfg)
		if err != nil {
			name, size := path, 0
			if m != nil {
				name, size = m.Collection.Name, m.Collection.Size
			}
			printer.ValidateResult(name, size, fault.Split(err))
			return errInvalid
		}

		plan, err := prepare(cmd, col)
		if err != nil {
			printer.ValidateResult(col.Name, col.Size, fault.Split(err))
			return errInvalid
		}
		printer.ValidateResult(col.Name, col.Size, nil)
		if showPlan, _ := cmd.Flags().GetBool("plan"); showPlan {
			printer.Plan(plan)
		}
		return nil
	},
}

// prepare reconciles col with the configured seed, or a fixed one, so
// repeated validation prints the same counts.
func prepare(cmd *cobra.Command, col *catalog.Collection) (*forge.Plan, error) {
	seed, _ := cmd.Flags().GetUint64("seed")
	if seed == 0 {
		seed = 1
	}
	return forge.New(col, forge.WithSeed(seed)).Prepare(cmd.Context())
}

func init() {
	validateCmd.Flags().Bool("plan", false, "print the reconciled trait counts")
	validateCmd.Flags().Uint64("seed", 0, "seed for proportional rounding (default 1)")
	rootCmd.AddCommand(validateCmd)
}
