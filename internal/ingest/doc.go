// Package ingest delivers finished artifacts to the downstream library
// endpoint. The sink reports success or failure only; retry policy belongs
// to the outbox.
package ingest
