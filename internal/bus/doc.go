// Package bus wraps the durable Kafka message bus between the ingest
// worker and the stream processor.
//
// Records are keyed by upper-case ticker, which gives per-symbol FIFO
// ordering across partitions. Consumption uses consumer groups with
// auto-commit disabled; offsets are committed by the caller only after a
// successful batch flush, yielding at-least-once delivery.
package bus
