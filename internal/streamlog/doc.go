// Package streamlog provides the per-stream fan-out log on Redis streams.
//
// The stream processor appends committed records; the gateway's fan-out
// bridge consumes them through a durable consumer group with explicit
// acks. Entries carry two named fields: "symbol" (upper-case ticker) and
// "data" (the full JSON payload including the type discriminator).
package streamlog
