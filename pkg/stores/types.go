package stores

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// ErrNotFound is wrapped by every lookup or delete of a missing record.
var ErrNotFound = engine.ErrNotFound

// Supported storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Store is an engine.Store that can also report its health.
type Store interface {
	engine.Store

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// AuditOutput returns the raw executor output stored with an audit record.
	AuditOutput(ctx context.Context, auditID string) (string, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Options selects and configures a storage backend.
type Options struct {
	Driver string
	Path   string
}

// Open creates, initializes and migrates the store selected by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil

	case DriverSQLite:
		if opts.Path != "" && opts.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := NewSQLiteStore(Config{Path: opts.Path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", opts.Driver)
	}
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
