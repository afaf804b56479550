// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog is the Catalog Store Gateway: the sole path through which
// the rest of the ingestion engine reads or writes persistent state.
//
// # Overview
//
// The package wraps an embedded DuckDB file as a relational catalog of
// ingested media. Every row written by a worker goes through this package;
// nothing else opens the catalog file directly.
//
// # Architecture
//
//   - catalog.go: connection lifecycle (open, extension preload, close,
//     checkpoint)
//   - extensions.go: local DuckDB extension availability checks
//   - connection.go: transient-error classification, pool sizing
//   - schema.go: sequence/table/index DDL (idempotent IF NOT EXISTS
//     statements; schema changes are made there, not via a migration
//     subsystem)
//   - tx.go: the withTx helper every write operation uses
//   - encoding.go: little-endian float64 slice encoding for face embeddings
//   - crud.go: the thirteen gateway operations
//
// # Surrogate keys
//
// DuckDB has no native auto-increment column type. Each BIGINT primary key
// is generated by a dedicated CREATE SEQUENCE and a DEFAULT nextval(...)
// clause, set up once in schema.go.
//
// # Transactions
//
// Every write runs inside withTx, which retries the whole transaction with a
// fixed backoff when begin fails with a transient connection error or commit
// fails with a connection error or transaction conflict, before surfacing a
// CatalogError. Other failures surface immediately, never retried.
//
// # Concurrency
//
// *DB is safe for concurrent use by multiple workers; the underlying
// database/sql connection pool serializes access to the single DuckDB file.
//
// # See Also
//
//   - internal/models: row types exchanged with this package
//   - internal/pipeline: the per-file orchestrator that calls these
//     operations in sequence
package catalog
