package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/papapumpkin/strata/internal/config"
	"github.com/papapumpkin/strata/internal/export"
	exportfs "github.com/papapumpkin/strata/internal/export/fs"
	exports3 "github.com/papapumpkin/strata/internal/export/s3"
	"github.com/papapumpkin/strata/internal/ledger"
	"github.com/papapumpkin/strata/internal/ledger/postgres"
	"github.com/papapumpkin/strata/internal/ledger/sqlite"
	"github.com/papapumpkin/strata/internal/log"
	"github.com/papapumpkin/strata/internal/telemetry"
)

// openLedger opens the ledger driver named in cfg.
func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Store, error) {
	driver, err := ledger.ParseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	switch driver {
	case ledger.DriverSQLite:
		return sqlite.Open(cfg.Path)
	case ledger.DriverPostgres:
		return postgres.Open(ctx, cfg.DSN, cfg.Table)
	default:
		return ledger.NewMemory(), nil
	}
}

// openExport opens the export driver named in cfg.
func openExport(ctx context.Context, cfg config.ExportConfig) (export.Store, error) {
	switch export.Driver(cfg.Driver) {
	case export.DriverFilesystem, "":
		return exportfs.New(cfg.Dir)
	case export.DriverS3:
		return exports3.New(ctx, exports3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case export.DriverMemory:
		return export.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown export driver %q (want fs, s3 or memory)", cfg.Driver)
	}
}

// openTracer builds the span exporter named in cfg. The returned file, if
// any, must be closed after the tracer is shut down.
func openTracer(ctx context.Context, cfg config.TraceConfig) (*telemetry.Tracer, *os.File, error) {
	tc := telemetry.TraceConfig{Exporter: cfg.Exporter, Endpoint: cfg.Endpoint}
	var f *os.File
	if cfg.Exporter == telemetry.ExporterStdout {
		if cfg.Path != "" {
			var err error
			f, err = os.Create(cfg.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("opening trace file: %w", err)
			}
			tc.Writer = f
		} else {
			tc.Writer = os.Stderr
		}
	}
	t, err := telemetry.NewTracer(ctx, tc)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, nil, err
	}
	return t, f, nil
}

// serveMetrics exposes m on addr until the returned stop func is called.
func serveMetrics(addr string, m *telemetry.Metrics) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorErr(log.CatPipeline, "metrics server failed", err, "addr", addr)
		}
	}()
	log.Info(log.CatPipeline, "metrics listening", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
