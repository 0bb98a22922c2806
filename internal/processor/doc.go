// Package processor implements the stream-processing stage: it consumes
// the bus topics, persists trades and bars to Postgres in idempotent
// batches, and republishes committed records to the fan-out streams.
//
// Offsets are committed only after a successful flush, so delivery is
// at-least-once end to end; the unique constraints on the fact tables
// make the persistence effectively exactly-once.
package processor
