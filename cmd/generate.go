package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/strata/internal/config"
	"github.com/papapumpkin/strata/internal/forge"
	"github.com/papapumpkin/strata/internal/ledger"
	"github.com/papapumpkin/strata/internal/log"
	"github.com/papapumpkin/strata/internal/telemetry"
	"github.com/papapumpkin/strata/internal/ui"
)

var generateCmd = &cobra.Command{
	Use:   "generate [manifest]",
	Short: "Generate every edition of a collection",
	Long: `Generates the editions of the collection described by the manifest
(default strata.toml), records them in the ledger and writes the
compatibility audit and DNA list to the export store.

--prior seeds uniqueness with the dna.json of an earlier batch; the
manifest's resume count must match it. --continue picks up an interrupted
run from the state file and the ledger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().Uint64("seed", 0, "random seed (default random)")
	generateCmd.Flags().Int("workers", 0, "concurrent ledger writers")
	generateCmd.Flags().String("prior", "", "dna.json of an earlier batch to stay unique against")
	generateCmd.Flags().Bool("continue", false, "continue the interrupted run recorded in the state file")
	generateCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	generateCmd.Flags().String("events", "", "append JSONL run events to this file")
	generateCmd.Flags().Bool("json", false, "print the editions as JSON on stdout")
	generateCmd.Flags().Bool("rarity", false, "print the trait distribution when done")
	generateCmd.Flags().BoolP("quiet", "q", false, "suppress progress output")
	_ = viper.BindPFlag("seed", generateCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("workers", generateCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("metrics_addr", generateCmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("events_path", generateCmd.Flags().Lookup("events"))
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	printer := ui.New()

	m, col, err := loadCollection(manifestArg(args), cfg)
	if err != nil {
		return err
	}
	dir := stateDir(cfg, m)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer led.Close()

	store, err := openExport(ctx, cfg.Export)
	if err != nil {
		return fmt.Errorf("opening export store: %w", err)
	}

	opts := []forge.Option{
		forge.WithWorkers(cfg.Workers),
		forge.WithStateDir(dir),
		forge.WithLedger(led),
		forge.WithExport(store),
	}
	if cfg.Seed != 0 {
		opts = append(opts, forge.WithSeed(cfg.Seed))
	}

	if priorPath, _ := cmd.Flags().GetString("prior"); priorPath != "" {
		prior, err := readPrior(priorPath)
		if err != nil {
			return err
		}
		if col.Resume == 0 {
			col.Resume = len(prior)
			printer.Warn(fmt.Sprintf("resume not set in the manifest; numbering continues after %d prior edition(s)", len(prior)))
		}
		opts = append(opts, forge.WithPrior(prior))
	}

	if cont, _ := cmd.Flags().GetBool("continue"); cont {
		copts, err := continueOptions(ctx, dir, led)
		if err != nil {
			return err
		}
		opts = append(opts, copts...)
	}

	if cfg.EventsPath != "" {
		em, err := telemetry.NewEmitter(cfg.EventsPath)
		if err != nil {
			return err
		}
		defer em.Close()
		opts = append(opts, forge.WithEmitter(em))
	}

	metrics := telemetry.NewMetrics()
	opts = append(opts, forge.WithMetrics(metrics))
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, metrics)
		defer stopMetrics()
	}

	tracer, traceFile, err := openTracer(ctx, cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Warn(log.CatPipeline, "tracer shutdown failed", "error", err)
		}
		if traceFile != nil {
			traceFile.Close()
		}
	}()
	opts = append(opts, forge.WithTracer(tracer))

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		printer.Banner(version)
		opts = append(opts, forge.WithProgress(printer.Progress))
	}

	f := forge.New(col, opts...)
	printer.Info(fmt.Sprintf("run %s, seed %d, %d edition(s)", f.RunID(), f.Seed(), col.Size))
	res, err := f.Run(ctx)
	if !quiet {
		printer.ProgressDone()
	}
	if err != nil {
		return err
	}

	printer.RunDone(res)
	if rarity, _ := cmd.Flags().GetBool("rarity"); rarity {
		printer.Rarity(res.Breakdown)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeEditions(cmd.OutOrStdout(), res.Editions)
	}
	return nil
}

// continueOptions restores the run id, seed and accepted editions of the
// run recorded in the state file in dir.
func continueOptions(ctx context.Context, dir string, led ledger.Store) ([]forge.Option, error) {
	st, err := forge.LoadState(dir)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("no %s in %s: nothing to continue", forge.StateFileName, dir)
	}
	if st.Status == forge.StatusDone {
		return nil, fmt.Errorf("run %s already completed", st.RunID)
	}
	if led.Driver() == ledger.DriverMemory {
		return nil, errors.New("--continue needs a persistent ledger (sqlite or postgres)")
	}
	recs, err := led.Records(ctx, st.RunID)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	log.Info(log.CatLedger, "continuing run", "run", st.RunID, "editions", len(recs))
	return []forge.Option{
		forge.WithRunID(st.RunID),
		forge.WithSeed(uint64(st.Seed)),
		forge.WithReplay(recs),
	}, nil
}

type editionJSON struct {
	Name          string            `json:"name"`
	Edition       int               `json:"edition"`
	Configuration int               `json:"configuration"`
	DNA           string            `json:"dna"`
	Attributes    []forge.Attribute `json:"attributes"`
}

func writeEditions(w io.Writer, eds []forge.Edition) error {
	out := make([]editionJSON, len(eds))
	for i, ed := range eds {
		out[i] = editionJSON{
			Name:          ed.Name,
			Edition:       ed.Number,
			Configuration: ed.Config,
			DNA:           ed.DNA.String(),
			Attributes:    ed.Attributes,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
