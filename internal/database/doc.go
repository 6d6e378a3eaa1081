// Package database provides the PostgreSQL connection pool for the reference store.
//
// The reference store holds display metadata only:
//   - tickers: symbol → company
//   - companies: company name and sector
//   - asset_metrics: last known price per symbol
//
// Quote correctness never depends on it; an unreachable store is logged and skipped.
package database
