package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-dm-backend/internal/config"
	"github.com/tbourn/go-dm-backend/internal/store"
	"github.com/tbourn/go-dm-backend/internal/store/badgerstore"
	"github.com/tbourn/go-dm-backend/internal/store/memory"
	"github.com/tbourn/go-dm-backend/internal/store/sqlstore"
)

// openStore opens the configured backend. When it cannot be opened and
// fallback is enabled, the in-memory store is used instead and the failure
// is logged.
func openStore(cfg config.StoreConfig, tracing bool, l zerolog.Logger) (store.Store, error) {
	st, err := openBackend(cfg, tracing)
	if err == nil {
		return st, nil
	}
	if !cfg.Fallback || cfg.Backend == config.BackendMemory {
		return nil, err
	}
	l.Error().Err(err).Str("backend", cfg.Backend).
		Msg("store unavailable; falling back to in-memory store, data will not persist")
	return memory.New(), nil
}

func openBackend(cfg config.StoreConfig, tracing bool) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlstore.Open(sqlstore.DriverSQLite, cfg.DBPath, sqlstore.Options{Tracing: tracing})
	case config.BackendMySQL:
		return sqlstore.Open(sqlstore.DriverMySQL, cfg.MySQLDSN, sqlstore.Options{Tracing: tracing})
	case config.BackendBadger:
		return badgerstore.Open(cfg.Badger, badgerstore.Options{})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
