// Package subscription keeps track of which rooms want which symbols.
//
// The Registry is shared between inbound request handlers and the broadcast
// loop; all access goes through its mutex, and the loop works from Snapshot
// copies so no lock is held during provider I/O.
package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/rickgao/quote-relay/internal/catalog"
	"github.com/rickgao/quote-relay/internal/model"
)

var (
	// ErrInvalidTicker is returned when a ticker fails normalisation.
	ErrInvalidTicker = catalog.ErrInvalidTicker
	// ErrEmptyRoom is returned for a blank room ID.
	ErrEmptyRoom = errors.New("room id is required")
)

// Hook is called outside the lock for each newly accepted (room, ticker).
type Hook func(room, ticker string)

// Registry maps rooms to symbol sets.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]struct{}

	onSubscribe Hook
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "subscriptions"),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// OnSubscribe installs the hook fired for each accepted ticker.
func (r *Registry) OnSubscribe(h Hook) {
	r.mu.Lock()
	r.onSubscribe = h
	r.mu.Unlock()
}

// Subscribe adds tickers to room, creating the room if needed.
// Valid tickers are added even when others are rejected; the returned error
// then wraps ErrInvalidTicker and lists the rejects.
func (r *Registry) Subscribe(room string, tickers ...string) ([]string, error) {
	if strings.TrimSpace(room) == "" {
		return nil, ErrEmptyRoom
	}
	accepted, rejected := catalog.NormalizeAll(tickers)

	r.mu.Lock()
	set, ok := r.rooms[room]
	if !ok && len(accepted) > 0 {
		set = make(map[string]struct{}, len(accepted))
		r.rooms[room] = set
	}
	for _, t := range accepted {
		set[t] = struct{}{}
	}
	hook := r.onSubscribe
	r.mu.Unlock()

	if len(accepted) > 0 {
		r.logger.Debug("subscribed", "room", room, "tickers", accepted)
	}
	if hook != nil {
		for _, t := range accepted {
			hook(room, t)
		}
	}

	if len(rejected) > 0 {
		return accepted, fmt.Errorf("%w: %s", ErrInvalidTicker, strings.Join(rejected, ", "))
	}
	return accepted, nil
}

// Unsubscribe removes tickers from room and returns those that were present.
// The room is deleted once its set is empty.
func (r *Registry) Unsubscribe(room string, tickers ...string) []string {
	accepted, _ := catalog.NormalizeAll(tickers)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		return nil
	}

	var removed []string
	for _, t := range accepted {
		if _, held := set[t]; held {
			delete(set, t)
			removed = append(removed, t)
		}
	}
	if len(set) == 0 {
		delete(r.rooms, room)
	}
	return removed
}

// DropRoom removes room entirely and returns the tickers it held, sorted.
func (r *Registry) DropRoom(room string) []string {
	r.mu.Lock()
	set, ok := r.rooms[room]
	delete(r.rooms, room)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	dropped := sortedKeys(set)
	r.logger.Debug("room dropped", "room", room, "tickers", len(dropped))
	return dropped
}

// WantedSymbols returns the union of all rooms' symbols, sorted.
func (r *Registry) WantedSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(map[string]struct{})
	for _, set := range r.rooms {
		for t := range set {
			union[t] = struct{}{}
		}
	}
	return sortedKeys(union)
}

// Symbols returns the tickers held by room, sorted.
func (r *Registry) Symbols(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms[room])
}

// Rooms returns all room IDs, sorted.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms)
}

// Stats returns room, pair and distinct symbol counts.
func (r *Registry) Stats() model.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st model.RegistryStats
	union := make(map[string]struct{})
	st.Rooms = len(r.rooms)
	for _, set := range r.rooms {
		st.Subscriptions += len(set)
		for t := range set {
			union[t] = struct{}{}
		}
	}
	st.Symbols = len(union)
	return st
}

// Snapshot returns a deep copy of room -> sorted symbols.
func (r *Registry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.rooms))
	for room, set := range r.rooms {
		out[room] = sortedKeys(set)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
