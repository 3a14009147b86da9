// Package storage selects the knowledge-base backend from configuration.
package storage

import (
	"context"
	"fmt"

	"lookupbot/internal/config"
	"lookupbot/internal/knowledge"
	"lookupbot/internal/storage/flatfile"
	"lookupbot/internal/storage/sheets"
	"lookupbot/internal/storage/sqlite"
)

// Backend is a knowledge.Store that may hold resources to release.
type Backend interface {
	knowledge.Store
	Close() error
}

type nopCloser struct {
	knowledge.Store
}

func (nopCloser) Close() error { return nil }

// Open builds the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		return nopCloser{flatfile.New(cfg.Storage.File.Path)}, nil
	case config.BackendSheets:
		s, err := sheets.New(ctx,
			cfg.Storage.Sheets.SpreadsheetID,
			cfg.Storage.Sheets.SheetName,
			cfg.Storage.Sheets.CredentialsFile,
		)
		if err != nil {
			return nil, err
		}
		return nopCloser{s}, nil
	case config.BackendSQLite:
		return sqlite.OpenStore(ctx, sqlite.Options{
			Path:           cfg.Storage.SQLite.Path,
			WALMode:        cfg.Storage.SQLite.WALMode,
			MaxConnections: cfg.Storage.SQLite.MaxConnections,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// Describe returns a short human label for logs.
func Describe(cfg config.Config) string {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		return "file " + cfg.Storage.File.Path
	case config.BackendSheets:
		return "sheets " + cfg.Storage.Sheets.SpreadsheetID + "/" + cfg.Storage.Sheets.SheetName
	case config.BackendSQLite:
		return "sqlite " + cfg.Storage.SQLite.Path
	default:
		return cfg.Storage.Backend
	}
}
