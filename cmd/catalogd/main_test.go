package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rejected request", engine.NewValidationError("unknown network", nil), exitRejected},
		{"busy host", engine.NewConflictError("host is busy", nil).WithCode(engine.ErrCodeBusy), exitBusy},
		{"store failure", errors.New("database is locked"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCLILoggerJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	logger := cliLogger(&buf, "json", "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("Skipping backfill row")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["app"] != "catalogd" || entry["message"] != "Skipping backfill row" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestCLILoggerBadLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	cliLogger(&bytes.Buffer{}, "console", "loud")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("GlobalLevel() = %s, want info", got)
	}
}
