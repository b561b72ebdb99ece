// Package database manages Motion Core's SQLite store.
//
// The store holds the motion journal and the schema_migrations
// bookkeeping table. Schema changes ship as embedded SQL files (see the
// migrations package at the repository root) and are applied with
// Migrate at startup, each migration in its own transaction.
//
// SQLite is opened with a single pooled connection: one writer is all
// SQLite supports, and journal write rates are far below its limits.
// WAL mode keeps API reads from blocking poll-loop writes.
package database
