// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/logging"
)

// maxAcquireRetries bounds how many attempts in all withTx makes at a
// transaction whose begin or commit step hits a transient error before
// surfacing a CatalogError.
const maxAcquireRetries = 3

// acquireRetryBackoff is the fixed delay between acquire retries.
const acquireRetryBackoff = 100 * time.Millisecond

// withTx runs fn inside a single logical transaction. When beginning the
// transaction fails with a transient connection error, or committing it
// fails with a connection error or a transaction conflict, it waits a fixed
// backoff and starts over with a fresh transaction (running fn again), for
// at most maxAcquireRetries attempts; any other failure, including an error
// from fn, is wrapped as a CatalogError and surfaced immediately.
func (db *DB) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAcquireRetries; attempt++ {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			lastErr = err
			if isConnectionError(err) && attempt < maxAcquireRetries {
				logging.Warn().Str("operation", operation).Int("attempt", attempt).Err(err).
					Msg("transient error acquiring catalog transaction, retrying")
				time.Sleep(acquireRetryBackoff)
				continue
			}
			return &ingesterr.CatalogError{Operation: operation, Err: err}
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return &ingesterr.CatalogError{Operation: operation, Err: err}
		}

		if err := tx.Commit(); err != nil {
			lastErr = err
			if (isConnectionError(err) || isTransactionConflict(err)) && attempt < maxAcquireRetries {
				logging.Warn().Str("operation", operation).Int("attempt", attempt).Err(err).
					Msg("transient error committing catalog transaction, retrying")
				time.Sleep(acquireRetryBackoff)
				continue
			}
			return &ingesterr.CatalogError{Operation: operation, Err: err}
		}

		return nil
	}

	return &ingesterr.CatalogError{Operation: operation, Err: lastErr}
}
