package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/catalogd/pkg/catalog"
	"github.com/openfroyo/catalogd/pkg/engine"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog data management",
		Long: `Manage the ownership data catalog requests resolve against.

Host and endpoint requests name a service, and host requests a module of that
service. Teams, services and modules are loaded from a seed file. Hosts
provisioned outside catalogd are registered with backfill.`,
	}

	cmd.AddCommand(newCatalogImportCommand())
	cmd.AddCommand(newCatalogBackfillCommand())

	return cmd
}

func newCatalogImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <seed-file>",
		Short: "Import teams, services and modules",
		Example: `  # Import into the configured store
  catalogd catalog import --config catalogd.yaml catalog.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			seed, err := catalog.LoadSeed(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := seed.Import(cmd.Context(), store); err != nil {
				return err
			}

			log.Info().
				Int("teams", len(seed.Teams)).
				Int("services", len(seed.Services)).
				Int("modules", len(seed.Modules)).
				Msg("Catalog imported")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d teams, %d services, %d modules\n",
				len(seed.Teams), len(seed.Services), len(seed.Modules))
			return nil
		},
	}

	return cmd
}

func newCatalogBackfillCommand() *cobra.Command {
	var requestor string

	cmd := &cobra.Command{
		Use:   "backfill <csv-file>",
		Short: "Register hosts provisioned outside catalogd",
		Long: `Register existing hosts without dispatching any work items.

Each line names one host:

  service-abbr,module-name,host-name,data-center,network,env,size

Rows with catalog options that are not configured, an unknown service or
module, or a host name the service already has are skipped.`,
		Example: `  # Register hosts listed in hosts.csv
  catalogd catalog backfill --config catalogd.yaml --requestor jdoe hosts.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open backfill file: %w", err)
			}
			defer file.Close()

			rows, err := catalog.ParseBackfill(file)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			// Backfill saves hosts directly and never submits a chain.
			svc := catalog.NewService(store, nil, cfg.Catalog, log.Logger)
			result, err := svc.BackfillHosts(cmd.Context(), catalog.BackfillRequest{
				Requestor: engine.Requestor{Username: requestor},
				Rows:      rows,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered %d hosts\n", len(result.HostIDs))
			for _, skip := range result.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped row %d (%s): %s\n", skip.Row, skip.HostName, skip.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requestor, "requestor", "ops", "username recorded on the audit records")

	return cmd
}
