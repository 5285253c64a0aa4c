package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the strata version",
	Run: func(cmd *cobra.Command, _ []string) {
		v := version
		if v == "dev" {
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
				v = info.Main.Version
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "strata %s\n", v)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
