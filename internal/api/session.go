package api

import (
	"context"
	"fmt"
)

// GetSession verifies the credentials and returns the gateway session.
func (c *Client) GetSession(ctx context.Context) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.get(ctx, "/session", nil, &resp); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &resp, nil
}
