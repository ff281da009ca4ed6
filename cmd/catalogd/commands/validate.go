package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/catalogd/pkg/catalog"
	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/senders"
)

func newValidateCommand() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		Long: `Validate a catalogd configuration file and, optionally, a catalog seed file.

This command checks:
  - YAML syntax
  - Field constraints (addresses, durations, option lists)
  - Sender settings, including the webhook URL
  - Seed references between teams, services and modules`,
		Example: `  # Validate the config file
  catalogd validate --config catalogd.yaml

  # Validate a seed file too
  catalogd validate --config catalogd.yaml --seed catalog.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Str("config", configPath).
				Str("seed", seedPath).
				Msg("Validating configuration")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if _, err := senders.New(cfg.Sender, log.Logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")

			if seedPath != "" {
				seed, err := catalog.LoadSeed(seedPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Seed is valid: %d teams, %d services, %d modules\n",
					len(seed.Teams), len(seed.Services), len(seed.Modules))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "catalog seed file to validate")

	return cmd
}
