package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/ui"
	"github.com/papapumpkin/strata/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [manifest]",
	Short: "Re-validate the manifest whenever it or a layer file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := manifestArg(args)
		printer := ui.New()

		layersDir := ""
		if m, err := catalog.LoadManifest(path); err == nil {
			layersDir = m.Collection.LayersDir
			if layersDir == "" {
				layersDir = "layers"
			}
			if !filepath.IsAbs(layersDir) {
				layersDir = filepath.Join(m.Dir, layersDir)
			}
		}

		w, err := watch.New(path)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		if err := w.Start(layersDir); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}

		report := func(r watch.Result) {
			name := r.Name
			if name == "" {
				name = path
			}
			printer.ValidateResult(name, r.Editions, r.Errs)
		}
		report(watch.Check(path))
		printer.Info("watching for changes, Ctrl-C to stop")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		w.Run(ctx, report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
