package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/archivist/internal/archive"
	"github.com/roach88/archivist/internal/config"
	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

// app is the wired runtime behind every data command.
type app struct {
	cfg      *config.Config
	store    *store.Store
	ds       *datastore.Datastore
	archiver *archive.Archiver
	pool     *archive.PoolPruner
	metrics  *prometheus.Registry
	// metricsFile is written on close when set.
	metricsFile string
	logger      *slog.Logger
	out         *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp loads configuration and wires store, datastore and archiver.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := newFormatter(opts, cmd)

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out.GetErrWriter(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	out.VerboseLog("opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		_ = out.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:         cfg,
		store:       st,
		logger:      logger,
		out:         out,
		metrics:     prometheus.NewRegistry(),
		metricsFile: opts.MetricsFile,
	}
	if err := a.wire(); err != nil {
		st.Close()
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to configure archive", err)
	}
	return a, nil
}

func (a *app) wire() error {
	a.ds = datastore.New(a.store, a.logger)
	for _, m := range a.cfg.Mappings() {
		if _, err := a.ds.RegisterMapping(m); err != nil {
			return err
		}
	}

	mode, err := archive.ParseMode(a.cfg.Mode)
	if err != nil {
		return err
	}
	backpressure, err := archive.ParseBackpressure(a.cfg.Prune.Backpressure)
	if err != nil {
		return err
	}

	metrics := archive.NewMetrics(a.metrics)
	var pruner archive.Pruner
	if a.cfg.Prune.Workers > 0 {
		a.pool = archive.NewPoolPruner(a.store, archive.PoolOptions{
			Workers:      a.cfg.Prune.Workers,
			QueueSize:    a.cfg.Prune.QueueSize,
			Backpressure: backpressure,
			Logger:       a.logger,
			Metrics:      metrics,
		})
		pruner = a.pool
	}

	a.archiver, err = archive.New(a.ds, archive.Options{
		Declarations: a.cfg.Declarations(),
		Mode:         mode,
		Pruner:       pruner,
		Logger:       a.logger,
		Metrics:      metrics,
	})
	return err
}

// close drains pending prune work, writes the metrics file and closes the
// database.
func (a *app) close() {
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Error("prune pool shutdown", "error", err)
		}
	}
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.metrics); err != nil {
			a.logger.Error("failed to write metrics", "path", a.metricsFile, "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// live loads the live document of kind with the identity given on the
// command line.
func (a *app) live(cmd *cobra.Command, kind, arg string) (document.Document, error) {
	id := parseID(arg)
	doc, err := a.ds.FindByID(cmd.Context(), kind, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %v: %w", kind, id, err)
	}
	return doc, nil
}

// parseID reads an identity argument. JSON integers and JSON strings are
// taken as such, so `7` names the integer _id and `"7"` the string one.
// Anything else is the literal text.
func parseID(arg string) any {
	v, err := document.DecodeValue([]byte(arg))
	if err != nil {
		return arg
	}
	switch v.(type) {
	case int64, string:
		return v
	default:
		return arg
	}
}
