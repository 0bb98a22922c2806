// Package model defines the shared data types flowing through the realtime
// pipeline: normalized trades and bars as they travel from the upstream feed,
// across the message bus, into Postgres, and out to WebSocket clients.
//
// Conventions:
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Tickers: canonical upper-case form
//   - Prices/sizes: float64 on the wire, NUMERIC in the store
package model
