// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"strings"
)

// isConnectionError checks if an error indicates database connection loss
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "bad connection") ||
		strings.Contains(errMsg, "driver: bad connection") ||
		strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}

// configureConnectionPool sets connection pool parameters from CatalogConfig.
// MinConns is enforced at Validate() time (spec's "min 1, max 20") but is
// otherwise advisory: database/sql has no pre-warm knob to open MinConns
// connections eagerly, so beyond bounding MaxConns from below at config load
// it only sets the pool's idle-connection cap.
func (db *DB) configureConnectionPool() error {
	db.conn.SetMaxOpenConns(db.cfg.MaxConns)
	db.conn.SetMaxIdleConns(db.cfg.MinConns)
	db.conn.SetConnMaxLifetime(db.cfg.ConnMaxLifetime)
	db.conn.SetConnMaxIdleTime(db.cfg.ConnMaxIdleTime)
	return nil
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}
