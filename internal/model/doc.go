// Package model defines shared data types used across the quote relay.
//
// Conventions:
//   - Prices: float64 in the instrument's quote currency, as delivered by the provider
//   - Timestamps: time.Time in UTC
//   - Tickers: uppercase provider symbols (e.g., "PETR4")
//   - IDs: uuid.UUID for published events
package model
