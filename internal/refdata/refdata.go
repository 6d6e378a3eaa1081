// Package refdata looks up display metadata for symbols in the reference store.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/quote-relay/internal/model"
)

var (
	// ErrNotFound means the symbol has no row in the store.
	ErrNotFound = errors.New("symbol not found")
	// ErrUnavailable means no store is connected.
	ErrUnavailable = errors.New("reference store unavailable")
)

const lookupSQL = `
SELECT t.symbol,
       COALESCE(c.company_name, ''),
       COALESCE(c.b3_sector, am.sector, ''),
       COALESCE(am.last_price, 0)::float8
FROM tickers t
LEFT JOIN companies c ON c.id = t.company_id
LEFT JOIN asset_metrics am ON am.symbol = t.symbol
WHERE t.symbol = $1
LIMIT 1`

// Querier is the subset of pgxpool.Pool used by Store.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Source yields the current querier, or nil when no store is connected.
type Source func() Querier

// PoolOwner is anything that owns a pgx pool, such as the connection manager.
type PoolOwner interface {
	Pool() *pgxpool.Pool
}

// FromPoolOwner adapts a pool owner into a Source.
func FromPoolOwner(o PoolOwner) Source {
	return func() Querier {
		if p := o.Pool(); p != nil {
			return p
		}
		return nil
	}
}

// DefaultMaxEntries caps the lookup cache.
const DefaultMaxEntries = 4096

type cacheEntry struct {
	info      model.SymbolInfo
	err       error
	expiresAt time.Time
}

// Store performs cached symbol lookups.
type Store struct {
	src    Source
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	cache      map[string]cacheEntry
	maxEntries int
}

// New creates a Store. A zero ttl disables caching.
func New(src Source, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		src:    src,
		ttl:    ttl,
		logger: logger.With("component", "refdata"),
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
		maxEntries: DefaultMaxEntries,
	}
}

// Lookup returns the display metadata for symbol.
func (s *Store) Lookup(ctx context.Context, symbol string) (model.SymbolInfo, error) {
	if s == nil || s.src == nil {
		return model.SymbolInfo{}, ErrUnavailable
	}

	if s.ttl > 0 {
		s.mu.Lock()
		e, ok := s.cache[symbol]
		s.mu.Unlock()
		if ok && s.now().Before(e.expiresAt) {
			return e.info, e.err
		}
	}

	q := s.src()
	if q == nil {
		return model.SymbolInfo{}, ErrUnavailable
	}

	var info model.SymbolInfo
	err := q.QueryRow(ctx, lookupSQL, symbol).Scan(&info.Symbol, &info.CompanyName, &info.Sector, &info.LastPrice)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = ErrNotFound
	case err != nil:
		s.logger.Debug("lookup failed", "ticker", symbol, "error", err)
		return model.SymbolInfo{}, fmt.Errorf("lookup %s: %w", symbol, err)
	}

	// Misses are cached too; transient errors are not
	if s.ttl > 0 {
		s.store(symbol, cacheEntry{info: info, err: err, expiresAt: s.now().Add(s.ttl)})
	}

	return info, err
}

// store caches e, sweeping expired entries and then the soonest-expiring
// one when the cache is full.
func (s *Store) store(symbol string, e cacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[symbol]; !ok && len(s.cache) >= s.maxEntries {
		now := s.now()
		for k, v := range s.cache {
			if !now.Before(v.expiresAt) {
				delete(s.cache, k)
			}
		}
		for len(s.cache) >= s.maxEntries {
			var (
				oldest string
				at     time.Time
			)
			for k, v := range s.cache {
				if oldest == "" || v.expiresAt.Before(at) {
					oldest, at = k, v.expiresAt
				}
			}
			delete(s.cache, oldest)
		}
	}
	s.cache[symbol] = e
}

// ReferencePrice returns the last stored price for symbol, or false.
func (s *Store) ReferencePrice(ctx context.Context, symbol string) (float64, bool) {
	info, err := s.Lookup(ctx, symbol)
	if err != nil || info.LastPrice <= 0 {
		return 0, false
	}
	return info.LastPrice, true
}
