package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Provider Types
// -----------------------------------------------------------------------------

// Tick is the latest top-of-book snapshot for a symbol.
type Tick struct {
	Bid       float64   // Best bid
	Ask       float64   // Best ask
	Last      float64   // Last traded price
	Volume    int64     // Traded volume
	Timestamp time.Time // Provider timestamp
}

// Valid reports whether the tick carries a usable price (bid > 0).
func (t Tick) Valid() bool {
	return t.Bid > 0
}

// Bar is a single OHLC candle.
type Bar struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Timestamp time.Time // Bar open time
}

// SymbolInfo is display metadata from the reference store.
type SymbolInfo struct {
	Symbol      string  // Ticker
	CompanyName string  // companies.company_name
	Sector      string  // companies.b3_sector
	LastPrice   float64 // asset_metrics.last_price, 0 if unknown
}

// -----------------------------------------------------------------------------
// Quote Types
// -----------------------------------------------------------------------------

// Tier identifies the strategy that produced a quote.
type Tier string

const (
	TierLiveTick   Tier = "live_tick"
	TierForcedTick Tier = "forced_tick"
	TierBar        Tier = "bar"
	TierSynthetic  Tier = "synthetic"
)

// Quote is an immutable price observation. A new one is produced on every resolution.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Source    Tier      `json:"source"`
	Realtime  bool      `json:"realtime"`

	// Bar tier only.
	Open float64 `json:"open,omitempty"`
	High float64 `json:"high,omitempty"`
	Low  float64 `json:"low,omitempty"`

	// Synthetic tier only.
	Change        float64 `json:"change,omitempty"`
	ChangePercent float64 `json:"change_percent,omitempty"`
}

// QuoteFromTick builds a realtime quote from a tick.
func QuoteFromTick(ticker string, t Tick, tier Tier) Quote {
	price := t.Last
	if price <= 0 {
		price = t.Bid
	}
	return Quote{
		Ticker:    ticker,
		Bid:       t.Bid,
		Ask:       t.Ask,
		Last:      t.Last,
		Price:     price,
		Volume:    t.Volume,
		Timestamp: t.Timestamp,
		Source:    tier,
		Realtime:  true,
	}
}

// QuoteFromBar builds a stale quote from the close of a bar.
func QuoteFromBar(ticker string, b Bar) Quote {
	return Quote{
		Ticker:    ticker,
		Bid:       b.Close,
		Ask:       b.Close,
		Last:      b.Close,
		Price:     b.Close,
		Volume:    b.Volume,
		Timestamp: b.Timestamp,
		Source:    TierBar,
		Realtime:  false,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
	}
}

// QuoteEvent is what gets published to a room's topic.
type QuoteEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	Room        string    `json:"room"`
	PublishedAt time.Time `json:"published_at"`
	Quote
}

// NewQuoteEvent stamps a quote for delivery to a room.
func NewQuoteEvent(room string, q Quote, now time.Time) QuoteEvent {
	return QuoteEvent{
		EventID:     uuid.New(),
		Room:        room,
		PublishedAt: now,
		Quote:       q,
	}
}

// -----------------------------------------------------------------------------
// State Types
// -----------------------------------------------------------------------------

// ActivationState tracks whether a symbol receives live ticks.
type ActivationState int

const (
	StateUnknown ActivationState = iota
	StateActivating
	StateActive
	StateFailed
)

func (s ActivationState) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WorkerState is the lifecycle state of the quote worker.
type WorkerState int

const (
	WorkerNotStarted WorkerState = iota
	WorkerStarting
	WorkerRunning
	WorkerStopping
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStarting:
		return "starting"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return "not_started"
	}
}

// MarshalText renders the state name in JSON.
func (s WorkerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RegistryStats summarizes the subscription registry.
type RegistryStats struct {
	Rooms         int `json:"rooms"`
	Subscriptions int `json:"subscriptions"`
	Symbols       int `json:"symbols"`
}

// Status is the snapshot reported by status and health endpoints.
type Status struct {
	State           WorkerState `json:"state"`
	Healthy         bool        `json:"healthy"`
	Rooms           int         `json:"rooms"`
	Subscriptions   int         `json:"subscriptions"`
	WantedSymbols   int         `json:"wanted_symbols"`
	ActiveSymbols   int         `json:"active_symbols"`
	FailedSymbols   int         `json:"failed_symbols"`
	LastBroadcastAt *time.Time  `json:"last_broadcast_at"`
	CatalogSize     int         `json:"catalog_size"`
	ActiveList      []string    `json:"active_list,omitempty"`
	FailedList      []string    `json:"failed_list,omitempty"`
	RoomIDs         []string    `json:"room_ids,omitempty"`
	DatabaseHealthy bool        `json:"database_connected"`
	TradingSession  string      `json:"trading_session"`
	Mode            string      `json:"mode"`
	Version         string      `json:"version"`

	Iterations         int64           `json:"iterations"`
	LastIteration      IterationCounts `json:"last_iteration"`
	TierCounts         map[Tier]int64  `json:"tier_counts"`
	Unresolved         int64           `json:"unresolved"`
	ActivationAttempts int64           `json:"activation_attempts"`
}

// IterationCounts summarises the most recent broadcast iteration.
type IterationCounts struct {
	Rooms       int           `json:"rooms"`
	Symbols     int           `json:"symbols"`
	Published   int64         `json:"published"`
	Unavailable int64         `json:"unavailable"`
	Failed      int64         `json:"failed"`
	Duration    time.Duration `json:"duration"`
}
