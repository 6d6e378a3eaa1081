// Package resolver produces the best obtainable quote for a symbol by walking
// an ordered list of sourcing strategies until one succeeds.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/quote-relay/internal/model"
)

// ErrUnavailable is returned when no tier produced a quote.
var ErrUnavailable = errors.New("quote unavailable")

// DefaultReferencePrice is used by the synthetic tier when nothing better is known.
const DefaultReferencePrice = 25.00

// Provider is the part of the gateway session the resolver reads from.
type Provider interface {
	LiveTick(ticker string) (model.Tick, bool)
	GetTick(ctx context.Context, ticker string) (model.Tick, bool, error)
	GetLatestBar(ctx context.Context, ticker string) (model.Bar, bool, error)
}

// Activator reports and changes activation state.
type Activator interface {
	IsActive(ticker string) bool
	TryLazy(ctx context.Context, ticker string) bool
}

// Catalog reports whether a symbol is quotable.
type Catalog interface {
	Contains(ticker string) bool
}

// PriceSource supplies reference prices for synthetic quotes.
type PriceSource interface {
	ReferencePrice(ctx context.Context, ticker string) (float64, bool)
}

// Strategy is one sourcing tier. It reports false when it has nothing to offer.
type Strategy func(ctx context.Context, ticker string) (model.Quote, bool)

type tier struct {
	name model.Tier
	fn   Strategy
}

// Config holds resolver settings.
type Config struct {
	CallTimeout    time.Duration      // Timeout for each provider call
	AllowSynthetic bool               // Enables the synthetic tier; never set in production
	BasePrices     map[string]float64 // Synthetic reference prices by ticker
}

// Resolver walks the tiers for a symbol.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	activator Activator
	catalog   Catalog
	prices    PriceSource

	providerMu sync.RWMutex
	provider   Provider

	tiers  []tier
	jitter func() float64 // Uniform in [-1, 1)
	volume func() int64

	countsMu sync.Mutex
	counts   map[model.Tier]int64
	misses   int64
}

// New creates a Resolver. catalog and prices may be nil.
func New(cfg Config, act Activator, cat Catalog, prices PriceSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}

	r := &Resolver{
		cfg:       cfg,
		logger:    logger.With("component", "resolver"),
		activator: act,
		catalog:   cat,
		prices:    prices,
		jitter:    func() float64 { return rand.Float64()*2 - 1 },
		volume:    func() int64 { return minSyntheticVolume + rand.Int64N(maxSyntheticVolume-minSyntheticVolume+1) },
		counts:    make(map[model.Tier]int64),
	}

	r.tiers = []tier{
		{model.TierLiveTick, r.liveTick},
		{model.TierLiveTick, r.activateThenLive},
		{model.TierForcedTick, r.forcedTick},
		{model.TierBar, r.latestBar},
	}
	if cfg.AllowSynthetic {
		r.tiers = append(r.tiers, tier{model.TierSynthetic, r.synthetic})
	}
	return r
}

// Bind sets the provider used by the live tiers. Passing nil unbinds it.
func (r *Resolver) Bind(p Provider) {
	r.providerMu.Lock()
	r.provider = p
	r.providerMu.Unlock()
}

func (r *Resolver) current() Provider {
	r.providerMu.RLock()
	defer r.providerMu.RUnlock()
	return r.provider
}

// Resolve returns the first quote any tier produces, or ErrUnavailable.
// It never panics.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (q model.Quote, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while resolving", "ticker", ticker, "panic", rec)
			q, err = model.Quote{}, ErrUnavailable
		}
	}()

	if r.catalog != nil && !r.catalog.Contains(ticker) {
		if r.cfg.AllowSynthetic {
			if q, ok := r.synthetic(ctx, ticker); ok {
				r.record(q.Source)
				return q, nil
			}
		}
		r.miss()
		return model.Quote{}, fmt.Errorf("%w: %s not in catalog", ErrUnavailable, ticker)
	}

	for i, t := range r.tiers {
		if ctx.Err() != nil {
			break
		}
		q, ok := t.fn(ctx, ticker)
		if !ok {
			continue
		}
		if i > 1 {
			r.logger.Debug("degraded quote", "ticker", ticker, "source", t.name)
		}
		r.record(q.Source)
		return q, nil
	}

	r.miss()
	return model.Quote{}, fmt.Errorf("%w: %s", ErrUnavailable, ticker)
}

// TierCounts returns how many quotes each tier produced and how many
// resolutions came up empty.
func (r *Resolver) TierCounts() (map[model.Tier]int64, int64) {
	r.countsMu.Lock()
	defer r.countsMu.Unlock()

	out := make(map[model.Tier]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out, r.misses
}

func (r *Resolver) record(t model.Tier) {
	r.countsMu.Lock()
	r.counts[t]++
	r.countsMu.Unlock()
}

func (r *Resolver) miss() {
	r.countsMu.Lock()
	r.misses++
	r.countsMu.Unlock()
}
