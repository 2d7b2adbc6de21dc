package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteverify/internal/resilience"
	"github.com/sells-group/siteverify/internal/store"
)

// initStore opens and migrates the configured run-history store, retrying
// transient failures.
func initStore(ctx context.Context) (store.Store, error) {
	return resilience.DoVal(ctx, resilience.StoreRetryConfig(cfg.Store.ConnectAttempts, "open"), openStore)
}

func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "siteverify.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
