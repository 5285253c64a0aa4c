package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/strata/internal/log"
	"github.com/papapumpkin/strata/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Constraint-aware trait selection for generative collections",
	Long: `Strata picks one trait per layer for every edition of a generative collection,
honoring rarity weights, incompatibilities and forced pairings, and keeps every
edition unique.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogging,
	PersistentPostRun: func(*cobra.Command, []string) { closeLog() },
}

// closeLog releases the log file opened by initLogging.
var closeLog = func() {}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.New().Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .strata.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-file", "", "write debug logs to this file")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".strata")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("STRATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// initLogging routes debug logs to the log file, or to stderr with
// --verbose. Without either, logging stays off.
func initLogging(*cobra.Command, []string) error {
	if path := viper.GetString("log_file"); path != "" {
		cleanup, err := log.Init(path, slog.LevelDebug)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		closeLog = cleanup
		return nil
	}
	if viper.GetBool("verbose") {
		log.InitWriter(os.Stderr, slog.LevelDebug)
	}
	return nil
}
