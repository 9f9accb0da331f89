package logstore

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options selects and configures a backend.
type Options struct {
	Driver  string // "postgres" or "memory"
	DSN     string
	Migrate bool
	Timeout time.Duration
}

// Open builds the configured store. It never fails: when the backend cannot
// be reached the error is logged and a Disabled store is returned, so callers
// short-circuit to empty results instead of crashing the process.
func Open(ctx context.Context, opts Options, logger *zap.Logger) Store {
	switch opts.Driver {
	case "memory":
		logger.Info("using in-memory log store")
		return NewMemoryStore()
	case "postgres", "":
	default:
		logger.Error("unknown log store driver, log store disabled", zap.String("driver", opts.Driver))
		return Disabled{}
	}

	if opts.DSN == "" {
		logger.Warn("postgres DSN not configured, log store disabled")
		return Disabled{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ps, err := NewPostgres(ctx, opts.DSN, logger)
	if err != nil {
		logger.Error("PostgreSQL unavailable, log store disabled", zap.Error(err))
		return Disabled{}
	}
	if opts.Migrate {
		if err := ps.Migrate(ctx); err != nil {
			logger.Error("migration failed, log store disabled", zap.Error(err))
			ps.Close()
			return Disabled{}
		}
	}
	return ps
}
