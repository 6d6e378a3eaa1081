package catalog

import (
	"errors"
	"strings"
)

// MaxTickerLen is the longest accepted ticker.
const MaxTickerLen = 10

// ErrInvalidTicker is returned for tickers that fail normalisation.
var ErrInvalidTicker = errors.New("invalid ticker")

// Normalize trims and upper-cases raw, and checks it is 1..MaxTickerLen
// characters of A-Z, 0-9 or '.'.
func Normalize(raw string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if t == "" || len(t) > MaxTickerLen {
		return "", ErrInvalidTicker
	}
	for i := 0; i < len(t); i++ {
		c := t[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.':
		default:
			return "", ErrInvalidTicker
		}
	}
	return t, nil
}

// NormalizeAll normalises every ticker, dropping duplicates and invalid
// entries. It returns the accepted tickers in input order and the rejected raw values.
func NormalizeAll(raw []string) (accepted, rejected []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		t, err := Normalize(r)
		if err != nil {
			rejected = append(rejected, r)
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}
