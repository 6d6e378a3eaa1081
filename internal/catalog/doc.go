// Package catalog holds the set of symbols the gateway can quote.
//
// The catalog is pulled once per worker start and is read-only afterwards.
// It also owns ticker normalisation and the exchange trading-session calendar.
package catalog
