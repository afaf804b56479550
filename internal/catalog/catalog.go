// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/logging"
)

// DB wraps the embedded DuckDB connection backing the catalog store
// gateway: pool-backed access to media objects, tensors, hashes, faces,
// tags, and flattened metadata.
type DB struct {
	conn *sql.DB
	cfg  *config.CatalogConfig

	// correlationID identifies this catalog session in logs; one per worker
	// process, generated at New().
	correlationID string
}

// New opens the embedded catalog database, applies connection pool tuning,
// and ensures the schema exists.
func New(cfg *config.CatalogConfig) (*DB, error) {
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory %s: %w", dbDir, err)
		}
	}

	// CRITICAL: Preload extensions BEFORE opening the main database. DuckDB
	// replays the WAL immediately on open; if the WAL contains statements
	// that rely on extension functions (e.g. ICU's CURRENT_TIMESTAMP for
	// TIMESTAMPTZ columns) and the extension isn't loaded yet, replay fails
	// with "GetDefaultDatabase with no default database set". Loading the
	// extension in a throwaway in-memory connection first caches it
	// per-process, so it's available when the main file is opened.
	if err := preloadExtensions(); err != nil {
		logging.Warn().Err(err).Msg("failed to preload extensions, WAL replay may fail if database has pending changes")
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	db := &DB{
		conn:          conn,
		cfg:           cfg,
		correlationID: uuid.NewString(),
	}

	if err := db.configureConnectionPool(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to configure connection pool: %w", err)
	}

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	logging.Info().Str("correlation_id", db.correlationID).Str("path", cfg.Path).Msg("catalog opened")

	return db, nil
}

// preloadExtensions loads DuckDB extensions known to be required by WAL
// replay in an in-memory database before opening the main database file.
// DuckDB caches loaded extensions per-process, so loading them here (even
// against :memory:) makes them available for the real connection that
// follows.
func preloadExtensions() error {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		logging.Debug().Msg("skipping extension preload in CI environment")
		return nil
	}

	conn, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return fmt.Errorf("failed to open in-memory database for extension preload: %w", err)
	}
	defer func() {
		conn.SetConnMaxLifetime(0)
		conn.SetMaxIdleConns(0)
		conn.SetMaxOpenConns(0)
		closeQuietly(conn)
	}()

	for _, ext := range []string{"icu"} {
		if !isExtensionInstalledLocally(ext) {
			logging.Debug().Str("extension", ext).Msg("extension not installed locally, skipping preload")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := conn.ExecContext(ctx, fmt.Sprintf("LOAD %s;", ext))
		cancel()

		if err != nil {
			logging.Debug().Str("extension", ext).Err(err).Msg("failed to preload extension")
		} else {
			logging.Debug().Str("extension", ext).Msg("extension preloaded successfully")
		}
	}

	return nil
}

// Close flushes the WAL via CHECKPOINT and closes the connection.
func (db *DB) Close() error {
	if db.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("failed to checkpoint catalog before close")
		}
		cancel()

		return db.conn.Close()
	}
	return nil
}

// initialize creates sequences, tables, and indexes. Every statement is
// CREATE ... IF NOT EXISTS, so reopening an existing catalog is a no-op.
func (db *DB) initialize() error {
	if err := db.createSequences(); err != nil {
		return err
	}
	if err := db.createTables(); err != nil {
		return err
	}
	if err := db.createIndexes(); err != nil {
		return err
	}

	// Flush the WAL after schema setup so a crash before the next
	// checkpoint doesn't replay CREATE TABLE statements that rely on
	// extension functions at startup (see preloadExtensions above).
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to checkpoint after schema initialization")
	}

	return nil
}

// checkpoint forces DuckDB to flush the WAL to the main database file.
func (db *DB) checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "CHECKPOINT;")
	return err
}

// closeQuietly closes a resource on an error path where the Close error is
// not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
