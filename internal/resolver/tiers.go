package resolver

import (
	"context"
	"time"

	"github.com/rickgao/quote-relay/internal/model"
	"github.com/shopspring/decimal"
)

var now = time.Now

var (
	jitterSpan = decimal.RequireFromString("0.002")
	bidFactor  = decimal.RequireFromString("0.999")
	askFactor  = decimal.RequireFromString("1.001")
	hundred    = decimal.NewFromInt(100)
)

// Synthetic volume range, inclusive.
const (
	minSyntheticVolume = 1000
	maxSyntheticVolume = 100000
)

// liveTick serves active symbols from the stream cache, falling back to a
// direct read when the stream has not pushed anything yet.
func (r *Resolver) liveTick(ctx context.Context, ticker string) (model.Quote, bool) {
	if !r.activator.IsActive(ticker) {
		return model.Quote{}, false
	}
	p := r.current()
	if p == nil {
		return model.Quote{}, false
	}

	if t, ok := p.LiveTick(ticker); ok && t.Valid() {
		return model.QuoteFromTick(ticker, t, model.TierLiveTick), true
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	t, ok, err := p.GetTick(ctx, ticker)
	if err != nil || !ok || !t.Valid() {
		return model.Quote{}, false
	}
	return model.QuoteFromTick(ticker, t, model.TierLiveTick), true
}

// activateThenLive spends one lazy activation attempt, then retries the live tier once.
func (r *Resolver) activateThenLive(ctx context.Context, ticker string) (model.Quote, bool) {
	if r.activator.IsActive(ticker) {
		return model.Quote{}, false
	}
	if !r.activator.TryLazy(ctx, ticker) {
		return model.Quote{}, false
	}
	return r.liveTick(ctx, ticker)
}

func (r *Resolver) forcedTick(ctx context.Context, ticker string) (model.Quote, bool) {
	p := r.current()
	if p == nil {
		return model.Quote{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	t, ok, err := p.GetTick(ctx, ticker)
	if err != nil {
		r.logger.Debug("forced tick failed", "ticker", ticker, "error", err)
		return model.Quote{}, false
	}
	if !ok || !t.Valid() {
		return model.Quote{}, false
	}
	return model.QuoteFromTick(ticker, t, model.TierForcedTick), true
}

func (r *Resolver) latestBar(ctx context.Context, ticker string) (model.Quote, bool) {
	p := r.current()
	if p == nil {
		return model.Quote{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	b, ok, err := p.GetLatestBar(ctx, ticker)
	if err != nil {
		r.logger.Debug("bar request failed", "ticker", ticker, "error", err)
		return model.Quote{}, false
	}
	if !ok || b.Close <= 0 {
		return model.Quote{}, false
	}
	return model.QuoteFromBar(ticker, b), true
}

// synthetic fabricates a clearly-tagged placeholder around a reference price.
func (r *Resolver) synthetic(ctx context.Context, ticker string) (model.Quote, bool) {
	ref := decimal.NewFromFloat(r.referencePrice(ctx, ticker))

	move := ref.Mul(jitterSpan).Mul(decimal.NewFromFloat(r.jitter()))
	price := ref.Add(move)

	last := price.Round(2)
	change := last.Sub(ref).Round(2)
	pct := change.Div(ref).Mul(hundred).Round(2)

	return model.Quote{
		Ticker:        ticker,
		Bid:           price.Mul(bidFactor).Round(2).InexactFloat64(),
		Ask:           price.Mul(askFactor).Round(2).InexactFloat64(),
		Last:          last.InexactFloat64(),
		Price:         last.InexactFloat64(),
		Volume:        r.volume(),
		Timestamp:     now(),
		Source:        model.TierSynthetic,
		Realtime:      false,
		Change:        change.InexactFloat64(),
		ChangePercent: pct.InexactFloat64(),
	}, true
}

// referencePrice picks the stored last price, then the configured base
// price, then DefaultReferencePrice.
func (r *Resolver) referencePrice(ctx context.Context, ticker string) float64 {
	if r.prices != nil {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		if p, ok := r.prices.ReferencePrice(ctx, ticker); ok {
			return p
		}
	}
	if p, ok := r.cfg.BasePrices[ticker]; ok && p > 0 {
		return p
	}
	return DefaultReferencePrice
}
