package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyCatalog means the gateway listed no usable symbols.
var ErrEmptyCatalog = errors.New("gateway returned an empty catalog")

// Load pulls the full symbol list and replaces the current set.
// Names that fail normalisation are skipped.
func (c *Catalog) Load(ctx context.Context, src Lister) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	names, err := src.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}

	symbols := make(map[string]struct{}, len(names))
	skipped := 0
	for _, n := range names {
		sym, err := Normalize(n)
		if err != nil {
			skipped++
			continue
		}
		symbols[sym] = struct{}{}
	}

	if len(symbols) == 0 {
		return ErrEmptyCatalog
	}

	c.state.replace(symbols, time.Now())

	c.logger.Info("catalog loaded",
		"symbols", len(symbols),
		"skipped", skipped,
		"duration", time.Since(start),
	)

	return nil
}
