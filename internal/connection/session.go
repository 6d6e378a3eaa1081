package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/quote-relay/internal/api"
	"github.com/rickgao/quote-relay/internal/model"
)

// Session exposes the gateway primitives the engine depends on.
type Session interface {
	// ListSymbols returns every tradable symbol.
	ListSymbols(ctx context.Context) ([]string, error)

	// Activate registers live-tick interest for ticker on the stream.
	Activate(ctx context.Context, ticker string) error

	// Release drops live-tick interest for ticker.
	Release(ctx context.Context, ticker string) error

	// LiveTick returns the freshest streamed tick for an activated ticker.
	LiveTick(ticker string) (model.Tick, bool)

	// GetTick requests the latest tick over REST without registering interest.
	GetTick(ctx context.Context, ticker string) (model.Tick, bool, error)

	// GetLatestBar requests the most recent one-minute bar.
	GetLatestBar(ctx context.Context, ticker string) (model.Bar, bool, error)

	// OnRegistrationLost sets a callback fired for every ticker whose
	// registration could not be restored after a stream reconnect.
	OnRegistrationLost(fn func(ticker string, err error))
}

type cachedTick struct {
	tick       model.Tick
	receivedAt time.Time
}

// session implements Session over one REST client and one stream.
type session struct {
	rest      *api.Client
	clientCfg ClientConfig
	cfg       ManagerConfig
	logger    *slog.Logger

	clientMu sync.RWMutex
	client   Client

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan Response
	cmdID     atomic.Int64

	stateMu sync.RWMutex
	sids    map[string]int64 // ticker → SID
	ticks   map[string]cachedTick

	lostMu sync.RWMutex
	onLost func(ticker string, err error)

	closed atomic.Bool
}

func newSession(rest *api.Client, clientCfg ClientConfig, cfg ManagerConfig, logger *slog.Logger) *session {
	return &session{
		rest:      rest,
		clientCfg: clientCfg,
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[int64]chan Response),
		sids:      make(map[string]int64),
		ticks:     make(map[string]cachedTick),
	}
}

func (s *session) current() Client {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

func (s *session) setClient(c Client) {
	s.clientMu.Lock()
	s.client = c
	s.clientMu.Unlock()
}

func (s *session) streamUp() bool {
	c := s.current()
	return !s.closed.Load() && c != nil && c.IsConnected()
}

func (s *session) counts() (registrations, cached int) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return len(s.sids), len(s.ticks)
}

func (s *session) close() {
	s.closed.Store(true)
	if c := s.current(); c != nil {
		c.Close()
	}
	s.failPending()
}

// OnRegistrationLost sets the lost-registration callback. Passing nil clears it.
func (s *session) OnRegistrationLost(fn func(ticker string, err error)) {
	s.lostMu.Lock()
	s.onLost = fn
	s.lostMu.Unlock()
}

func (s *session) notifyLost(ticker string, err error) {
	s.lostMu.RLock()
	fn := s.onLost
	s.lostMu.RUnlock()
	if fn != nil {
		fn(ticker, err)
	}
}

// ListSymbols returns the gateway catalog.
func (s *session) ListSymbols(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrNotConnected
	}
	return s.rest.ListSymbols(ctx)
}

// Activate subscribes ticker on the ticks channel. Already-registered tickers are a no-op.
func (s *session) Activate(ctx context.Context, ticker string) error {
	s.stateMu.RLock()
	_, ok := s.sids[ticker]
	s.stateMu.RUnlock()
	if ok {
		return nil
	}

	resp, err := s.command(ctx, "subscribe", SubscribeParams{
		Channels: []string{TicksChannel},
		Symbol:   ticker,
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ticker, err)
	}

	var sub SubscribedMsg
	if err := json.Unmarshal(resp.Msg, &sub); err != nil {
		return fmt.Errorf("subscribe %s: decode response: %w", ticker, err)
	}

	s.stateMu.Lock()
	s.sids[ticker] = sub.SID
	s.stateMu.Unlock()

	s.logger.Debug("subscribed", "ticker", ticker, "sid", sub.SID)
	return nil
}

// Release unsubscribes ticker. Local state is dropped even if the gateway call fails.
func (s *session) Release(ctx context.Context, ticker string) error {
	s.stateMu.Lock()
	sid, ok := s.sids[ticker]
	delete(s.sids, ticker)
	delete(s.ticks, ticker)
	s.stateMu.Unlock()

	if !ok {
		return nil
	}

	if _, err := s.command(ctx, "unsubscribe", UnsubscribeParams{SIDs: []int64{sid}}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", ticker, err)
	}

	s.logger.Debug("unsubscribed", "ticker", ticker, "sid", sid)
	return nil
}

// Registered returns every ticker with a live registration.
func (s *session) Registered() []string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	out := make([]string, 0, len(s.sids))
	for t := range s.sids {
		out = append(out, t)
	}
	return out
}

// LiveTick returns a cached streamed tick no older than TickMaxAge.
func (s *session) LiveTick(ticker string) (model.Tick, bool) {
	s.stateMu.RLock()
	ct, ok := s.ticks[ticker]
	s.stateMu.RUnlock()

	if !ok || !ct.tick.Valid() || time.Since(ct.receivedAt) > s.cfg.TickMaxAge {
		return model.Tick{}, false
	}
	return ct.tick, true
}

// GetTick requests the latest tick over REST.
func (s *session) GetTick(ctx context.Context, ticker string) (model.Tick, bool, error) {
	if s.closed.Load() {
		return model.Tick{}, false, ErrNotConnected
	}
	return s.rest.GetTick(ctx, ticker)
}

// GetLatestBar requests the most recent one-minute bar.
func (s *session) GetLatestBar(ctx context.Context, ticker string) (model.Bar, bool, error) {
	if s.closed.Load() {
		return model.Bar{}, false, ErrNotConnected
	}
	return s.rest.GetLatestBar(ctx, ticker)
}

// handleMessage routes a stream message to a pending command or the tick cache.
func (s *session) handleMessage(msg TimestampedMessage) {
	if resp, ok := tryParseResponse(msg.Data); ok {
		s.routeResponse(resp)
		return
	}

	var data DataMessage
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		s.logger.Debug("unparseable stream message", "error", err)
		return
	}
	if data.Type != "tick" {
		return
	}

	var tm TickMsg
	if err := json.Unmarshal(data.Msg, &tm); err != nil {
		s.logger.Debug("unparseable tick", "error", err)
		return
	}

	tick := api.TickToModel(tm.APITick)
	if tick.Timestamp.IsZero() {
		tick.Timestamp = msg.ReceivedAt.UTC()
	}

	s.stateMu.Lock()
	// Late ticks for released symbols are dropped
	if _, ok := s.sids[tm.Symbol]; ok {
		s.ticks[tm.Symbol] = cachedTick{tick: tick, receivedAt: msg.ReceivedAt}
	}
	s.stateMu.Unlock()
}

// tryParseResponse attempts to parse a message as a command response.
func tryParseResponse(data []byte) (Response, bool) {
	if !bytes.Contains(data, []byte(`"id":`)) {
		return Response{}, false
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, false
	}

	switch resp.Type {
	case "subscribed", "unsubscribed", "error", "ok":
		return resp, true
	}

	return Response{}, false
}

// routeResponse sends a response to the waiting goroutine.
func (s *session) routeResponse(resp Response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// failPending abandons every in-flight command.
func (s *session) failPending() {
	s.pendingMu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
}

// command sends a stream command and waits for its correlated response.
func (s *session) command(ctx context.Context, name string, params any) (Response, error) {
	if s.closed.Load() {
		return Response{}, ErrNotConnected
	}
	c := s.current()
	if c == nil || !c.IsConnected() {
		return Response{}, ErrNotConnected
	}

	id := s.cmdID.Add(1)
	respCh := make(chan Response, 1)

	s.pendingMu.Lock()
	s.pending[id] = respCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	data, err := json.Marshal(Command{ID: id, Cmd: name, Params: params})
	if err != nil {
		return Response{}, fmt.Errorf("encode command: %w", err)
	}
	if err := c.Send(data); err != nil {
		return Response{}, err
	}

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-timer.C:
		return Response{}, ErrTimeout
	case resp, ok := <-respCh:
		if !ok {
			return Response{}, ErrNotConnected
		}
		if resp.Type == "error" {
			var errMsg ErrorMsg
			json.Unmarshal(resp.Msg, &errMsg)
			return Response{}, fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
		}
		return resp, nil
	}
}

// reregister re-subscribes every registered ticker on a fresh stream.
func (s *session) reregister(ctx context.Context) (restored, failed int) {
	s.stateMu.Lock()
	tickers := make([]string, 0, len(s.sids))
	for t := range s.sids {
		tickers = append(tickers, t)
	}
	s.sids = make(map[string]int64)
	s.ticks = make(map[string]cachedTick)
	s.stateMu.Unlock()

	for _, t := range tickers {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
		err := s.Activate(cctx, t)
		cancel()
		if err != nil {
			s.logger.Warn("re-subscribe failed", "ticker", t, "error", err)
			s.notifyLost(t, err)
			failed++
			continue
		}
		restored++
	}
	return restored, failed
}

func isAuth(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
