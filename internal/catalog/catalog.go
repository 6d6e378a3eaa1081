package catalog

import (
	"context"
	"log/slog"
	"time"
)

// Lister yields the gateway's tradable symbols.
type Lister interface {
	ListSymbols(ctx context.Context) ([]string, error)
}

// Config holds catalog configuration.
type Config struct {
	LoadTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LoadTimeout: 30 * time.Second,
	}
}

// Catalog is the set of quotable symbols.
type Catalog struct {
	cfg    Config
	logger *slog.Logger

	state *catalogState
}

// New creates an empty Catalog.
func New(cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}

	return &Catalog{
		cfg:    cfg,
		logger: logger.With("component", "catalog"),
		state:  newState(),
	}
}

// Contains reports whether symbol is quotable.
func (c *Catalog) Contains(symbol string) bool {
	return c.state.contains(symbol)
}

// Symbols returns all symbols, sorted.
func (c *Catalog) Symbols() []string {
	return c.state.sorted()
}

// Size returns the number of symbols.
func (c *Catalog) Size() int {
	return c.state.size()
}

// LoadedAt returns when the catalog was last loaded, or the zero time.
func (c *Catalog) LoadedAt() time.Time {
	return c.state.lastLoad()
}

// Filter returns the members of symbols present in the catalog, preserving order.
func (c *Catalog) Filter(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if c.Contains(s) {
			out = append(out, s)
		}
	}
	return out
}
