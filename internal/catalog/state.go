package catalog

import (
	"sort"
	"sync"
	"time"
)

// catalogState holds the thread-safe symbol set.
type catalogState struct {
	mu sync.RWMutex

	symbols map[string]struct{}

	// Last successful load timestamp.
	loadedAt time.Time
}

func newState() *catalogState {
	return &catalogState{
		symbols: make(map[string]struct{}),
	}
}

// replace swaps in a freshly loaded symbol set (write-locked).
func (s *catalogState) replace(symbols map[string]struct{}, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols = symbols
	s.loadedAt = at
}

func (s *catalogState) contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.symbols[symbol]
	return ok
}

// sorted returns a sorted copy of all symbols (read-locked).
func (s *catalogState) sorted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *catalogState) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

func (s *catalogState) lastLoad() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
