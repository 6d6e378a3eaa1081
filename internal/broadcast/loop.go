package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/quote-relay/internal/model"
	"github.com/rickgao/quote-relay/internal/publish"
	"golang.org/x/sync/errgroup"
)

// ErrPublishFailed is returned by RunOnce when every publish in an iteration failed.
var ErrPublishFailed = errors.New("all publishes failed")

// Source provides the subscriptions to serve.
type Source interface {
	Snapshot() map[string][]string
}

// Resolver produces a quote for a symbol.
type Resolver interface {
	Resolve(ctx context.Context, ticker string) (model.Quote, error)
}

// Config holds loop configuration.
type Config struct {
	Interval     time.Duration // Pause between iterations (default: 2s)
	ErrorBackoff time.Duration // Pause after a failed iteration (default: 30s)
	Concurrency  int           // Symbols resolved in parallel (default: 16)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     2 * time.Second,
		ErrorBackoff: 30 * time.Second,
		Concurrency:  16,
	}
}

// IterationStats describes one iteration.
type IterationStats struct {
	Rooms       int           `json:"rooms"`
	Symbols     int           `json:"symbols"`
	Published   int64         `json:"published"`
	Unavailable int64         `json:"unavailable"`
	Failed      int64         `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// Loop resolves and publishes quotes on an interval.
type Loop struct {
	cfg      Config
	source   Source
	resolver Resolver
	pub      publish.Publisher
	logger   *slog.Logger
	now      func() time.Time

	lastBroadcast atomic.Pointer[time.Time]
	lastIteration atomic.Pointer[IterationStats]
	iterations    atomic.Int64
}

// New creates a Loop.
func New(cfg Config, src Source, res Resolver, pub publish.Publisher, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	return &Loop{
		cfg:      cfg,
		source:   src,
		resolver: res,
		pub:      pub,
		logger:   logger.With("component", "broadcast"),
		now:      time.Now,
	}
}

// Run iterates until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("broadcast loop started",
		"interval", l.cfg.Interval,
		"concurrency", l.cfg.Concurrency,
	)
	defer l.logger.Info("broadcast loop stopped", "iterations", l.iterations.Load())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := l.cfg.Interval
		if _, err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("broadcast iteration failed",
				"error", err,
				"backoff", l.cfg.ErrorBackoff,
			)
			wait = l.cfg.ErrorBackoff
		}
		timer.Reset(wait)
	}
}

// RunOnce performs a single iteration.
func (l *Loop) RunOnce(ctx context.Context) (stats IterationStats, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in iteration: %v", r)
		}
		l.iterations.Add(1)
	}()

	snap := l.source.Snapshot()
	byTicker := invert(snap)
	stats.Rooms = len(snap)
	stats.Symbols = len(byTicker)

	if len(byTicker) == 0 {
		l.lastIteration.Store(&stats)
		return stats, nil
	}

	var (
		published, unavailable, failed atomic.Int64
		panicErr                       atomic.Pointer[error]
	)

	var g errgroup.Group
	g.SetLimit(l.cfg.Concurrency)

	for ticker, rooms := range byTicker {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					perr := fmt.Errorf("panic serving %s: %v", ticker, r)
					l.logger.Error("recovered panic", "ticker", ticker, "rooms", rooms, "panic", r)
					panicErr.CompareAndSwap(nil, &perr)
					failed.Add(1)
				}
			}()

			q, err := l.resolver.Resolve(ctx, ticker)
			if err != nil {
				l.logger.Debug("quote unavailable", "ticker", ticker, "error", err)
				unavailable.Add(1)
				return nil
			}

			for _, room := range rooms {
				ev := model.NewQuoteEvent(room, q, l.now())
				if err := l.pub.Publish(ctx, ev); err != nil {
					l.logger.Warn("publish failed",
						"room", room,
						"ticker", ticker,
						"error", err,
					)
					failed.Add(1)
					continue
				}
				published.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	stats.Published = published.Load()
	stats.Unavailable = unavailable.Load()
	stats.Failed = failed.Load()
	stats.Duration = time.Since(start)
	l.lastIteration.Store(&stats)

	if stats.Published > 0 {
		at := l.now()
		l.lastBroadcast.Store(&at)
	}

	l.logger.Debug("broadcast iteration complete",
		"rooms", stats.Rooms,
		"symbols", stats.Symbols,
		"published", stats.Published,
		"unavailable", stats.Unavailable,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)

	if p := panicErr.Load(); p != nil {
		return stats, *p
	}
	if stats.Published == 0 && stats.Failed > 0 {
		return stats, ErrPublishFailed
	}
	return stats, nil
}

// LastBroadcastAt returns when a quote was last published.
func (l *Loop) LastBroadcastAt() (time.Time, bool) {
	if t := l.lastBroadcast.Load(); t != nil {
		return *t, true
	}
	return time.Time{}, false
}

// LastIteration returns the stats of the most recent iteration.
func (l *Loop) LastIteration() IterationStats {
	if s := l.lastIteration.Load(); s != nil {
		return *s
	}
	return IterationStats{}
}

// Iterations returns how many iterations have completed.
func (l *Loop) Iterations() int64 {
	return l.iterations.Load()
}

// invert turns room -> tickers into ticker -> rooms.
func invert(snap map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for room, tickers := range snap {
		for _, t := range tickers {
			out[t] = append(out[t], room)
		}
	}
	return out
}
