package worker

import (
	"context"

	"github.com/rickgao/quote-relay/internal/broadcast"
	"github.com/rickgao/quote-relay/internal/catalog"
	"github.com/rickgao/quote-relay/internal/model"
)

// Subscribe adds tickers to room. See subscription.Registry.Subscribe.
func (w *Worker) Subscribe(room string, tickers []string) ([]string, error) {
	return w.deps.Registry.Subscribe(room, tickers...)
}

// Unsubscribe removes tickers from room and returns those removed.
func (w *Worker) Unsubscribe(room string, tickers []string) []string {
	return w.deps.Registry.Unsubscribe(room, tickers...)
}

// OnDisconnect forgets room.
func (w *Worker) OnDisconnect(room string) {
	dropped := w.deps.Registry.DropRoom(room)
	if len(dropped) > 0 {
		w.logger.Debug("room disconnected", "room", room, "tickers", len(dropped))
	}
}

// GetQuoteNow resolves ticker immediately. Every failure is ErrUnavailable.
func (w *Worker) GetQuoteNow(ctx context.Context, ticker string) (model.Quote, error) {
	t, err := catalog.Normalize(ticker)
	if err != nil {
		return model.Quote{}, ErrUnavailable
	}
	q, err := w.deps.Resolver.Resolve(ctx, t)
	if err != nil {
		return model.Quote{}, ErrUnavailable
	}
	return q, nil
}

// Healthy reports whether the worker is running on a healthy connection.
func (w *Worker) Healthy() bool {
	return w.State() == model.WorkerRunning && w.deps.Connections.Healthy()
}

// Status returns a snapshot for status endpoints.
func (w *Worker) Status() model.Status {
	state := w.State()
	reg := w.deps.Registry.Stats()
	counts := w.deps.Activation.Counts()
	conn := w.deps.Connections.Stats()

	st := model.Status{
		State:           state,
		Healthy:         state == model.WorkerRunning && w.deps.Connections.Healthy(),
		Rooms:           reg.Rooms,
		Subscriptions:   reg.Subscriptions,
		WantedSymbols:   reg.Symbols,
		ActiveSymbols:   counts.Active,
		FailedSymbols:   counts.Exhausted,
		CatalogSize:     w.deps.Catalog.Size(),
		ActiveList:      w.deps.Activation.ActiveSymbols(),
		FailedList:      w.deps.Activation.FailedSymbols(),
		RoomIDs:         w.deps.Registry.Rooms(),
		DatabaseHealthy: conn.StoreOpen,
		Mode:            w.cfg.Mode,
		Version:         w.cfg.Version,
	}
	it := w.deps.Loop.LastIteration()
	st.Iterations = w.deps.Loop.Iterations()
	st.LastIteration = model.IterationCounts{
		Rooms:       it.Rooms,
		Symbols:     it.Symbols,
		Published:   it.Published,
		Unavailable: it.Unavailable,
		Failed:      it.Failed,
		Duration:    it.Duration,
	}
	st.TierCounts, st.Unresolved = w.deps.Resolver.TierCounts()
	st.ActivationAttempts = w.deps.Activation.Attempts()

	if at, ok := w.deps.Loop.LastBroadcastAt(); ok {
		st.LastBroadcastAt = &at
	}
	if w.deps.Calendar != nil {
		st.TradingSession = string(w.deps.Calendar.Session(w.now()))
	}
	return st
}

// RunOnce performs a broadcast iteration outside the loop's schedule.
func (w *Worker) RunOnce(ctx context.Context) (broadcast.IterationStats, error) {
	if w.State() != model.WorkerRunning {
		return broadcast.IterationStats{}, ErrNotRunning
	}
	return w.deps.Loop.RunOnce(ctx)
}
