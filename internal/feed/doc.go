// Package feed maintains the connection to the upstream market-data
// WebSocket, authenticates, subscribes to the configured symbol set, and
// normalizes incoming frames into model.Trade and model.Bar records.
//
// The upstream speaks a batched JSON protocol: each WebSocket message is a
// JSON array of frames, each carrying a "T" discriminator ("t" trade,
// "b" bar, "success"/"subscription"/"error" control).
package feed
