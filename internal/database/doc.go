// Package database provides the pgx connection pool for the market schema.
//
// The schema is append-only downstream of the upstream feed: symbols,
// trades, and bars are inserted by the stream processor and read by the
// REST services. Unique constraints on the fact tables enforce idempotent
// writes under at-least-once delivery.
package database
