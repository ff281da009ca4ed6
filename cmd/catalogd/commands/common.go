package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/stores"
)

// loadConfig loads --config, or the defaults when it is not set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		log.Debug().Msg("No config file given, using defaults")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (stores.Store, error) {
	store, err := stores.Open(ctx, stores.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
