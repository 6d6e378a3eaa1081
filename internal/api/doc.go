// Package api provides the market-data gateway REST client.
//
// Endpoints:
//   - GET /session                         login probe
//   - GET /symbols                         tradable symbols (cursor paginated)
//   - GET /symbols/{ticker}/tick           latest tick, 404 when none
//   - GET /symbols/{ticker}/bars           recent bars (interval, limit)
//
// Every request carries HMAC-signed terminal headers from package auth.
package api
