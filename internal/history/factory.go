package history

import (
	"context"
	"errors"
	"fmt"

	"okucheck/config"
	"okucheck/internal/storage"
)

// Result holds the history store and the connection it owns.
// The caller is responsible for calling Close().
type Result struct {
	Store   Store
	Storage storage.Storage
}

// Close releases the store and its connection. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
		r.Store = nil
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens the configured history backend.
// When history is disabled it returns a NoopStore with nil storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.History.Enabled {
		return &Result{Store: NoopStore{}}, nil
	}

	conn, err := storage.New(ctx, buildStorageConfig(cfg.History))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	store, err := NewWithStorage(ctx, conn, cfg.History.RetentionDays)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Result{Store: store, Storage: conn}, nil
}

// NewWithStorage creates the Store matching conn's backend.
// The caller keeps ownership of conn.
func NewWithStorage(ctx context.Context, conn storage.Storage, retentionDays int) (Store, error) {
	switch conn.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(ctx, conn.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, conn.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, conn.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", conn.Type())
	}
}

func buildStorageConfig(cfg config.HistoryConfig) storage.Config {
	storageCfg := storage.Config{
		Type: cfg.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.PostgreSQL.URL,
			MaxConns: cfg.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.MongoDB.URL,
			Database: cfg.MongoDB.Database,
		},
	}

	if storageCfg.Type == "" {
		storageCfg.Type = storage.TypeSQLite
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = storage.DefaultSQLitePath
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = storage.DefaultMongoDatabase
	}
	return storageCfg
}
