package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/catalogd/cmd/catalogd/commands"
	"github.com/openfroyo/catalogd/pkg/engine"
)

// Set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Exit codes. Rejected requests are told apart from failures so scripts driving
// backfills and callbacks can decide whether a retry makes sense.
const (
	exitFailure  = 1
	exitRejected = 2
	exitBusy     = 3
)

func main() {
	log.Logger = cliLogger(os.Stderr, os.Getenv("CATALOGD_LOG_FORMAT"), os.Getenv("CATALOGD_LOG_LEVEL"))

	// Cancelling stops the API server; executor callbacks already accepted run to completion.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	if ctx.Err() != nil {
		log.Info().Msg("catalogd stopped by signal")
	}
	if err != nil {
		log.Error().Err(err).Str("code", engine.ErrorCode(err)).Msg("catalogd failed")
		os.Exit(exitCode(err))
	}
}

// cliLogger builds the global logger. serve logs through its configured telemetry
// logger instead; every other command uses this one.
func cliLogger(out io.Writer, format, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Str("app", "catalogd").Logger()
}

func exitCode(err error) int {
	switch {
	case engine.IsValidation(err):
		return exitRejected
	case engine.IsConflict(err):
		return exitBusy
	default:
		return exitFailure
	}
}
