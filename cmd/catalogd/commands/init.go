package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/stores"
)

const defaultConfigFile = "./catalogd.yaml"

func newInitCommand() *cobra.Command {
	var (
		storage   string
		senderURL string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration",
		Long: `Write a catalogd configuration file populated with the defaults.

With --storage sqlite the database is created and migrated as well. With --sender-url
the webhook sender is selected and pointed at the executor.`,
		Example: `  # In-memory storage, noop sender
  catalogd init

  # SQLite storage and a webhook executor
  catalogd init --storage sqlite --sender-url http://executor:8000/workitems

  # Custom config path
  catalogd init --config /etc/catalogd/catalogd.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = defaultConfigFile
			}

			log.Info().
				Str("config", path).
				Str("storage", storage).
				Msg("Initializing configuration")

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to check config file: %w", err)
			}

			cfg := config.Default()
			cfg.Storage.Driver = storage
			if storage == stores.DriverSQLite {
				cfg.Storage.Path = filepath.Join(filepath.Dir(path), "data", "catalogd.db")
			}
			if senderURL != "" {
				cfg.Sender.Type = config.SenderWebhook
				cfg.Sender.URL = senderURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created config file: %s\n", path)

			if storage == stores.DriverSQLite {
				store, err := openStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					return fmt.Errorf("failed to close store: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Initialized SQLite database: %s\n", cfg.Storage.Path)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nNext steps:\n")
			fmt.Fprintf(cmd.OutOrStdout(), "  1. Load teams, services and modules:\n")
			fmt.Fprintf(cmd.OutOrStdout(), "     catalogd catalog import --config %s catalog.yaml\n\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "  2. Start the server:\n")
			fmt.Fprintf(cmd.OutOrStdout(), "     catalogd serve --config %s\n", path)

			return nil
		},
	}

	cmd.Flags().StringVar(&storage, "storage", stores.DriverMemory, "storage driver (memory, sqlite)")
	cmd.Flags().StringVar(&senderURL, "sender-url", "", "executor webhook URL")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	return cmd
}
