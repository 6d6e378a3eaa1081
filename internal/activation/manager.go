package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/quote-relay/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var errNoTick = errors.New("no valid tick after registration")

// Provider is the part of the gateway session activation needs.
type Provider interface {
	Activate(ctx context.Context, ticker string) error
	Release(ctx context.Context, ticker string) error
	LiveTick(ticker string) (model.Tick, bool)
	GetTick(ctx context.Context, ticker string) (model.Tick, bool, error)
}

// Config holds activation settings.
type Config struct {
	MaxRetries  int           // Failures before a symbol is exhausted
	CallTimeout time.Duration // Per-attempt timeout covering registration and probe
	RetryPause  time.Duration // Pause between default-pass attempts of one symbol
	Concurrency int           // Symbols activated in parallel by the default pass
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		CallTimeout: 3 * time.Second,
		RetryPause:  time.Second,
		Concurrency: 4,
	}
}

// Counts summarises the state table.
type Counts struct {
	Active     int `json:"active"`
	Activating int `json:"activating"`
	Failed     int `json:"failed"`
	Exhausted  int `json:"exhausted"`
}

// PassResult reports a default activation pass.
type PassResult struct {
	Activated []string
	Failed    []string
	Skipped   []string // Exhausted before the pass, or not in the catalog
}

type entry struct {
	state    model.ActivationState
	failures int
	grants   int
	lastErr  string
}

// Manager owns the per-symbol activation table.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	providerMu sync.RWMutex
	provider   Provider

	mu      sync.Mutex
	entries map[string]*entry

	flight   singleflight.Group
	attempts atomic.Int64
}

// New creates an activation Manager.
func New(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "activation"),
		entries: make(map[string]*entry),
	}
}

// Bind sets the provider used for attempts. Passing nil unbinds it.
func (m *Manager) Bind(p Provider) {
	m.providerMu.Lock()
	m.provider = p
	m.providerMu.Unlock()
}

func (m *Manager) current() Provider {
	m.providerMu.RLock()
	defer m.providerMu.RUnlock()
	return m.provider
}

// entryLocked returns the entry for ticker, creating it (caller must hold mu).
func (m *Manager) entryLocked(ticker string) *entry {
	e, ok := m.entries[ticker]
	if !ok {
		e = &entry{}
		m.entries[ticker] = e
	}
	return e
}

// State returns the activation state of ticker.
func (m *Manager) State(ticker string) model.ActivationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[ticker]; ok {
		return e.state
	}
	return model.StateUnknown
}

// IsActive reports whether ticker is receiving live ticks.
func (m *Manager) IsActive(ticker string) bool {
	return m.State(ticker) == model.StateActive
}

// Failures returns the failure count of ticker.
func (m *Manager) Failures(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[ticker]; ok {
		return e.failures
	}
	return 0
}

// Exhausted reports whether ticker has used its retry budget.
func (m *Manager) Exhausted(ticker string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ticker]
	return ok && m.exhaustedLocked(e)
}

// Grant allows one more lazy attempt for an exhausted ticker.
// It has no effect on tickers still within budget.
func (m *Manager) Grant(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ticker]
	if ok && e.failures >= m.cfg.MaxRetries {
		e.grants++
	}
}

// Attempts returns the total number of activation attempts made.
func (m *Manager) Attempts() int64 {
	return m.attempts.Load()
}

// Activate attempts to put ticker on the live feed, regardless of budget.
// Concurrent calls for one ticker share a single attempt, which runs
// detached from any one caller and is bounded by CallTimeout. A caller whose
// ctx ends first gets false while the attempt carries on.
func (m *Manager) Activate(ctx context.Context, ticker string) bool {
	ch := m.flight.DoChan(ticker, func() (any, error) {
		return m.attempt(context.WithoutCancel(ctx), ticker), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

// MarkLost records that the provider dropped the registration of an active
// ticker. The ticker becomes Failed without spending budget, so the lazy
// tier retries it.
func (m *Manager) MarkLost(ticker string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ticker]
	if !ok || e.state != model.StateActive {
		return
	}
	e.state = model.StateFailed
	if err != nil {
		e.lastErr = err.Error()
	}
	m.logger.Warn("live registration lost", "ticker", ticker, "error", err)
}

// TryLazy activates ticker on demand. Active tickers succeed immediately;
// exhausted tickers are attempted only by consuming a grant.
func (m *Manager) TryLazy(ctx context.Context, ticker string) bool {
	m.mu.Lock()
	e := m.entryLocked(ticker)
	if e.state == model.StateActive {
		m.mu.Unlock()
		return true
	}
	if e.failures >= m.cfg.MaxRetries {
		if e.grants == 0 {
			m.mu.Unlock()
			return false
		}
		e.grants--
	}
	m.mu.Unlock()

	return m.Activate(ctx, ticker)
}

func (m *Manager) attempt(ctx context.Context, ticker string) bool {
	p := m.current()
	if p == nil {
		return false
	}

	m.mu.Lock()
	e := m.entryLocked(ticker)
	if e.state == model.StateActive {
		m.mu.Unlock()
		return true
	}
	e.state = model.StateActivating
	m.mu.Unlock()

	m.attempts.Add(1)
	err := m.try(ctx, p, ticker)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		e.state = model.StateActive
		e.lastErr = ""
		m.logger.Info("symbol activated", "ticker", ticker)
		return true
	}

	e.state = model.StateFailed
	e.failures++
	e.lastErr = err.Error()
	m.logger.Warn("activation failed",
		"ticker", ticker,
		"failures", e.failures,
		"max", m.cfg.MaxRetries,
		"error", err,
	)
	if e.failures == m.cfg.MaxRetries {
		m.logger.Warn("symbol exhausted activation budget", "ticker", ticker)
	}
	return false
}

// try registers interest and probes for a tick with bid > 0.
// Panics from the provider are converted into errors.
func (m *Manager) try(ctx context.Context, p Provider, ticker string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during activation: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	if err := p.Activate(ctx, ticker); err != nil {
		return err
	}

	if t, ok := p.LiveTick(ticker); ok && t.Valid() {
		return nil
	}

	t, ok, err := p.GetTick(ctx, ticker)
	if err == nil && (!ok || !t.Valid()) {
		err = errNoTick
	}
	if err != nil {
		// Drop the dangling registration
		if rerr := p.Release(ctx, ticker); rerr != nil {
			m.logger.Debug("release after failed probe", "ticker", ticker, "error", rerr)
		}
		return err
	}
	return nil
}

// Release drops live-feed interest for an active ticker.
func (m *Manager) Release(ctx context.Context, ticker string) error {
	m.mu.Lock()
	e, ok := m.entries[ticker]
	if !ok || e.state != model.StateActive {
		m.mu.Unlock()
		return nil
	}
	e.state = model.StateUnknown
	m.mu.Unlock()

	p := m.current()
	if p == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	return p.Release(ctx, ticker)
}

// ReleaseAll releases every active ticker, logging failures.
// It returns the number released without error.
func (m *Manager) ReleaseAll(ctx context.Context) int {
	released := 0
	for _, ticker := range m.ActiveSymbols() {
		if err := m.Release(ctx, ticker); err != nil {
			m.logger.Warn("release failed", "ticker", ticker, "error", err)
			continue
		}
		released++
	}
	return released
}

// DefaultPass eagerly activates symbols, retrying each within its remaining
// budget. Exhausted symbols are skipped without an attempt.
func (m *Manager) DefaultPass(ctx context.Context, symbols []string) PassResult {
	var (
		res PassResult
		mu  sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for _, sym := range symbols {
		if m.Exhausted(sym) {
			res.Skipped = append(res.Skipped, sym)
			continue
		}

		g.Go(func() error {
			ok := m.activateWithin(gctx, sym)
			mu.Lock()
			if ok {
				res.Activated = append(res.Activated, sym)
			} else {
				res.Failed = append(res.Failed, sym)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Strings(res.Activated)
	sort.Strings(res.Failed)

	m.logger.Info("default activation pass complete",
		"activated", len(res.Activated),
		"failed", len(res.Failed),
		"skipped", len(res.Skipped),
	)
	return res
}

// activateWithin retries ticker until it is active or exhausted.
func (m *Manager) activateWithin(ctx context.Context, ticker string) bool {
	for first := true; ; first = false {
		if !first {
			if m.Exhausted(ticker) {
				return false
			}
			select {
			case <-ctx.Done():
				return false
			case <-time.After(m.cfg.RetryPause):
			}
		}
		if m.Activate(ctx, ticker) {
			return true
		}
	}
}

// Reset clears the whole table, including failure counts.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
}

// Counts summarises the table.
func (m *Manager) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counts
	for _, e := range m.entries {
		switch e.state {
		case model.StateActive:
			c.Active++
		case model.StateActivating:
			c.Activating++
		case model.StateFailed:
			c.Failed++
		}
		if m.exhaustedLocked(e) {
			c.Exhausted++
		}
	}
	return c
}

// ActiveSymbols returns active tickers, sorted.
func (m *Manager) ActiveSymbols() []string {
	return m.collect(func(e *entry) bool { return e.state == model.StateActive })
}

// FailedSymbols returns exhausted tickers that are not active, sorted.
func (m *Manager) FailedSymbols() []string {
	return m.collect(m.exhaustedLocked)
}

// exhaustedLocked reports an inactive entry past its budget (caller must hold mu).
func (m *Manager) exhaustedLocked(e *entry) bool {
	return e.state != model.StateActive && e.failures >= m.cfg.MaxRetries
}

func (m *Manager) collect(keep func(*entry) bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for t, e := range m.entries {
		if keep(e) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
