package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/config"
	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/store"
)

// app is what a directory command runs against: the resolved configuration,
// the open store and an engine wired to logging and metrics.
type app struct {
	cfg      *config.Config
	store    *store.Store
	engine   *engine.Engine
	registry *prometheus.Registry
	logger   *slog.Logger
	out      *OutputFormatter
}

// openApp loads configuration, applies flag overrides and opens the store.
// Callers must Close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := newFormatter(opts, cmd)

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, out.Fail("failed to load config", err)
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.MetricsOut != "" {
		cfg.MetricsFile = opts.MetricsOut
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	self, err := cfg.SelfAddress()
	if err != nil {
		return nil, out.Fail("invalid self address", err)
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	registry := prometheus.NewRegistry()
	eng := engine.New(st, engine.SelfAddressFunc(func() address.Address { return self }),
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(registry)),
		engine.WithMergeListener(engine.MergeListenerFunc(func(_ context.Context, n engine.MergeNotification) {
			out.VerboseLog("merged %v into %s (%s)", n.Absorbed, n.Surviving, n.ID)
		})),
	)

	return &app{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		registry: registry,
		logger:   logger,
		out:      out,
	}, nil
}

// Close writes metrics if requested and closes the store.
func (a *app) Close() error {
	var errs []error
	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("error closing", "error", err)
		return err
	}
	return nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when run
// outside Execute (tests calling RunE directly).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
