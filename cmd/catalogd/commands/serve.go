package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/catalogd/pkg/api"
	"github.com/openfroyo/catalogd/pkg/catalog"
	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/senders"
	"github.com/openfroyo/catalogd/pkg/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	var (
		listen   string
		seedPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalogd server",
		Long: `Run the catalogd API server.

The server accepts catalog requests, dispatches work items through the configured
sender and resolves them when the executor calls back. When a config file is given,
changes to its catalog section are applied without a restart.`,
		Example: `  # Serve with defaults (in-memory store, noop sender)
  catalogd serve

  # Serve with a config file
  catalogd serve --config /etc/catalogd/catalogd.yaml

  # Override the listen address
  catalogd serve --listen :9090

  # Load teams, services and modules at startup
  catalogd serve --seed catalog.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddress = listen
			}
			if verbose {
				cfg.Telemetry.Logging.Level = "debug"
			}
			if jsonOutput {
				cfg.Telemetry.Logging.Format = "json"
			}
			return runServer(cmd.Context(), cfg, seedPath)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&seedPath, "seed", "", "catalog seed file imported at startup")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, seedPath string) (err error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if serr := tel.Shutdown(shutdownCtx); serr != nil {
			err = multierror.Append(err, serr).ErrorOrNil()
		}
	}()
	tel.StartMetricsServer()

	logger := tel.Logger.Zerolog()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	if seedPath != "" {
		seed, err := catalog.LoadSeed(seedPath)
		if err != nil {
			return err
		}
		if err := seed.Import(ctx, store); err != nil {
			return err
		}
		logger.Info().Str("seed", seedPath).Int("services", len(seed.Services)).Msg("Catalog seed imported")
	}

	sender, err := senders.New(cfg.Sender, logger)
	if err != nil {
		return err
	}

	processor := engine.NewProcessor(store, sender, tel.Metrics, logger, engine.WithTracer(tel.Tracer))
	reconciler := engine.NewReconciler(processor, cfg.Processor.PendingDeadline, cfg.Processor.SweepInterval, logger)
	svc := catalog.NewService(store, processor, cfg.Catalog, logger)
	server := api.NewServer(cfg.CallbackPath, svc, processor, store, tel)

	g, ctx := errgroup.WithContext(ctx)

	if configPath != "" {
		watcher := config.NewWatcher(configPath, logger)
		if err := watcher.Watch(ctx, svc.SetOptions); err != nil {
			logger.Warn().Err(err).Msg("Catalog options will not be reloaded")
		}
	}

	g.Go(func() error {
		return reconciler.Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx, cfg.ListenAddress)
	})

	logger.Info().
		Str("listen_address", cfg.ListenAddress).
		Str("storage", cfg.Storage.Driver).
		Str("sender", cfg.Sender.Type).
		Msg("catalogd started")

	return g.Wait()
}
