// Package queue persists analysis jobs and outbox entries in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, status
// transitions, interrupted-job recovery, and the ingestion outbox's
// attempt/backoff bookkeeping. Jobs capture the prepared execution plan
// (argv and output path, resolved once at enqueue time) so re-runs are
// deterministic.
//
// The database is treated as transient storage for in-flight work rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package queue
