// Package connection implements the ConnectionManager.
//
// The manager owns, exclusively:
//   - the gateway REST client (catalog, forced ticks, bars)
//   - one stream WebSocket carrying live ticks for activated symbols
//   - the optional reference-store pool
//
// Activation registers a symbol on the stream's "ticks" channel; release
// unsubscribes it. Dropped streams reconnect with exponential backoff and
// re-register every active symbol.
package connection
