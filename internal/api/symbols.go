package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/quote-relay/internal/model"
)

// GetSymbols fetches a page of symbols.
func (c *Client) GetSymbols(ctx context.Context, opts GetSymbolsOptions) (*SymbolsResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Group != "" {
		query.Set("group", opts.Group)
	}

	var resp SymbolsResponse
	if err := c.get(ctx, "/symbols", query, &resp); err != nil {
		return nil, fmt.Errorf("get symbols: %w", err)
	}

	return &resp, nil
}

// ListSymbols fetches every symbol name by paginating through results.
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	opts := GetSymbolsOptions{Limit: 1000}
	var names []string

	for {
		resp, err := c.GetSymbols(ctx, opts)
		if err != nil {
			return nil, err
		}

		for _, s := range resp.Symbols {
			if s.Symbol != "" {
				names = append(names, s.Symbol)
			}
		}

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return names, nil
}

// GetTick fetches the latest tick. The bool is false when the gateway has none.
func (c *Client) GetTick(ctx context.Context, ticker string) (model.Tick, bool, error) {
	var resp TickResponse
	if err := c.get(ctx, "/symbols/"+url.PathEscape(ticker)+"/tick", nil, &resp); err != nil {
		if IsNotFound(err) {
			return model.Tick{}, false, nil
		}
		return model.Tick{}, false, fmt.Errorf("get tick %s: %w", ticker, err)
	}
	if resp.Tick == nil {
		return model.Tick{}, false, nil
	}
	return TickToModel(*resp.Tick), true, nil
}

// GetLatestBar fetches the most recent one-minute bar.
func (c *Client) GetLatestBar(ctx context.Context, ticker string) (model.Bar, bool, error) {
	query := url.Values{}
	query.Set("interval", "M1")
	query.Set("limit", "1")

	var resp BarsResponse
	if err := c.get(ctx, "/symbols/"+url.PathEscape(ticker)+"/bars", query, &resp); err != nil {
		if IsNotFound(err) {
			return model.Bar{}, false, nil
		}
		return model.Bar{}, false, fmt.Errorf("get bars %s: %w", ticker, err)
	}
	if len(resp.Bars) == 0 {
		return model.Bar{}, false, nil
	}
	return BarToModel(resp.Bars[len(resp.Bars)-1]), true, nil
}
