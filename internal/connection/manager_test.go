package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/quote-relay/internal/api"
	"github.com/rickgao/quote-relay/internal/auth"
)

// fakeGateway serves the REST session probe and the tick stream.
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	sessionStatus int
	streamStatus  int
	sessionCalls  int
	reject        map[string]bool
	nextSID       int64
	subscribes    map[string]int
	unsubscribed  []int64
	conns         []*gatewayConn
}

type gatewayConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *gatewayConn) write(v any) error {
	data, _ := json.Marshal(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:          t,
		reject:     make(map[string]bool),
		subscribes: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.sessionCalls++
		status := g.sessionStatus
		g.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(api.SessionResponse{Login: "1", Server: "Fake", FeedUp: true})
	})
	mux.HandleFunc("/stream", g.handleStream)

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) handleStream(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	status := g.streamStatus
	g.mu.Unlock()
	if status != 0 {
		http.Error(w, "rejected", status)
		return
	}

	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	gc := &gatewayConn{conn: ws}
	g.mu.Lock()
	g.conns = append(g.conns, gc)
	g.mu.Unlock()
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd struct {
			ID     int64           `json:"id"`
			Cmd    string          `json:"cmd"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		switch cmd.Cmd {
		case "subscribe":
			var p SubscribeParams
			json.Unmarshal(cmd.Params, &p)
			g.mu.Lock()
			g.subscribes[p.Symbol]++
			rejected := g.reject[p.Symbol]
			g.nextSID++
			sid := g.nextSID
			g.mu.Unlock()
			if rejected {
				gc.write(map[string]any{"id": cmd.ID, "type": "error", "msg": ErrorMsg{Code: "6", Message: "unknown symbol"}})
				continue
			}
			gc.write(map[string]any{"id": cmd.ID, "type": "subscribed", "msg": SubscribedMsg{SID: sid, Channel: TicksChannel}})
		case "unsubscribe":
			var p UnsubscribeParams
			json.Unmarshal(cmd.Params, &p)
			g.mu.Lock()
			g.unsubscribed = append(g.unsubscribed, p.SIDs...)
			g.mu.Unlock()
			gc.write(map[string]any{"id": cmd.ID, "type": "unsubscribed", "msg": map[string]any{"sids": p.SIDs}})
		}
	}
}

func (g *fakeGateway) pushTick(symbol string, bid float64) {
	g.mu.Lock()
	conns := append([]*gatewayConn(nil), g.conns...)
	g.mu.Unlock()
	for _, c := range conns {
		c.write(map[string]any{
			"type": "tick",
			"sid":  1,
			"msg": map[string]any{
				"symbol":   symbol,
				"bid":      fmt.Sprintf("%.2f", bid),
				"ask":      fmt.Sprintf("%.2f", bid+0.02),
				"last":     fmt.Sprintf("%.2f", bid+0.01),
				"volume":   100,
				"time_msc": time.Now().UnixMilli(),
			},
		})
	}
}

func (g *fakeGateway) dropStreams() {
	g.mu.Lock()
	conns := g.conns
	g.conns = nil
	g.mu.Unlock()
	for _, c := range conns {
		c.conn.Close()
	}
}

func (g *fakeGateway) subscribeCount(symbol string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribes[symbol]
}

func (g *fakeGateway) managerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.RestURL = g.server.URL
	cfg.WSURL = "ws" + strings.TrimPrefix(g.server.URL, "http") + "/stream"
	cfg.APIRetries = 0
	cfg.CommandTimeout = time.Second
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond
	return cfg
}

func testCreds() *auth.Credentials {
	return &auth.Credentials{Login: "1", Password: "p"}
}

func TestManager_ConnectActivateRelease(t *testing.T) {
	g := newFakeGateway(t)
	m := NewManager(g.managerConfig(), nil, nil)
	ctx := context.Background()

	sess, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	if !m.Healthy() {
		t.Error("Healthy() = false after Connect")
	}

	if err := sess.Activate(ctx, "PETR4"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	// Already registered: no second command
	if err := sess.Activate(ctx, "PETR4"); err != nil {
		t.Fatalf("second Activate failed: %v", err)
	}
	if n := g.subscribeCount("PETR4"); n != 1 {
		t.Errorf("subscribe commands = %d, want 1", n)
	}

	g.pushTick("PETR4", 32.50)
	g.pushTick("VALE3", 53.40) // not registered
	waitFor(t, time.Second, func() bool {
		_, ok := sess.LiveTick("PETR4")
		return ok
	})

	tick, _ := sess.LiveTick("PETR4")
	if tick.Bid != 32.50 {
		t.Errorf("Bid = %v, want 32.50", tick.Bid)
	}
	if _, ok := sess.LiveTick("VALE3"); ok {
		t.Error("LiveTick(VALE3) should be absent for an unregistered symbol")
	}

	if err := sess.Release(ctx, "PETR4"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, ok := sess.LiveTick("PETR4"); ok {
		t.Error("LiveTick(PETR4) should be absent after Release")
	}
	if err := sess.Release(ctx, "PETR4"); err != nil {
		t.Errorf("Release of unregistered ticker = %v, want nil", err)
	}

	stats := m.Stats()
	if !stats.Connected || !stats.StreamUp || stats.Registrations != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestManager_ActivateRejected(t *testing.T) {
	g := newFakeGateway(t)
	g.reject["ZZZ"] = true
	m := NewManager(g.managerConfig(), nil, nil)
	ctx := context.Background()

	sess, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	err = sess.Activate(ctx, "ZZZ")
	if err == nil || !strings.Contains(err.Error(), "unknown symbol") {
		t.Errorf("Activate(ZZZ) error = %v, want unknown symbol", err)
	}
	if stats := m.Stats(); stats.Registrations != 0 {
		t.Errorf("Registrations = %d, want 0", stats.Registrations)
	}
}

func TestManager_ConnectErrors(t *testing.T) {
	t.Run("session rejected", func(t *testing.T) {
		g := newFakeGateway(t)
		g.sessionStatus = http.StatusUnauthorized
		m := NewManager(g.managerConfig(), nil, nil)

		_, err := m.Connect(context.Background(), testCreds())
		if !errors.Is(err, ErrAuthentication) {
			t.Errorf("Connect() error = %v, want ErrAuthentication", err)
		}
		if m.Healthy() {
			t.Error("Healthy() = true after failed Connect")
		}
	})

	t.Run("stream rejected", func(t *testing.T) {
		g := newFakeGateway(t)
		g.streamStatus = http.StatusForbidden
		m := NewManager(g.managerConfig(), nil, nil)

		_, err := m.Connect(context.Background(), testCreds())
		if !errors.Is(err, ErrAuthentication) {
			t.Errorf("Connect() error = %v, want ErrAuthentication", err)
		}
	})

	t.Run("gateway error", func(t *testing.T) {
		g := newFakeGateway(t)
		g.sessionStatus = http.StatusServiceUnavailable
		m := NewManager(g.managerConfig(), nil, nil)

		_, err := m.Connect(context.Background(), testCreds())
		if !errors.Is(err, ErrTransport) {
			t.Errorf("Connect() error = %v, want ErrTransport", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		cfg := DefaultManagerConfig()
		cfg.RestURL = "http://127.0.0.1:1"
		cfg.WSURL = "ws://127.0.0.1:1/stream"
		cfg.APIRetries = 0
		m := NewManager(cfg, nil, nil)

		_, err := m.Connect(context.Background(), testCreds())
		if !errors.Is(err, ErrTransport) {
			t.Errorf("Connect() error = %v, want ErrTransport", err)
		}
	})
}

func TestManager_ConnectIdempotent(t *testing.T) {
	g := newFakeGateway(t)
	m := NewManager(g.managerConfig(), nil, nil)
	ctx := context.Background()

	first, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	second, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if first != second {
		t.Error("second Connect should return the existing session")
	}

	g.mu.Lock()
	calls := g.sessionCalls
	g.mu.Unlock()
	if calls != 1 {
		t.Errorf("session probes = %d, want 1", calls)
	}
}

func TestManager_Disconnect(t *testing.T) {
	g := newFakeGateway(t)
	m := NewManager(g.managerConfig(), nil, nil)
	ctx := context.Background()

	sess, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	for _, sym := range []string{"PETR4", "VALE3"} {
		if err := sess.Activate(ctx, sym); err != nil {
			t.Fatalf("Activate(%s) failed: %v", sym, err)
		}
	}

	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	g.mu.Lock()
	released := len(g.unsubscribed)
	g.mu.Unlock()
	if released != 2 {
		t.Errorf("unsubscribed = %d, want 2", released)
	}
	if m.Healthy() {
		t.Error("Healthy() = true after Disconnect")
	}
	if err := m.Disconnect(ctx); err != nil {
		t.Errorf("second Disconnect = %v, want nil", err)
	}
	if err := sess.Activate(ctx, "ITUB4"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Activate after Disconnect = %v, want ErrNotConnected", err)
	}
	if _, _, err := sess.GetTick(ctx, "ITUB4"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("GetTick after Disconnect = %v, want ErrNotConnected", err)
	}
}

func TestManager_ReconnectRestoresRegistrations(t *testing.T) {
	g := newFakeGateway(t)
	m := NewManager(g.managerConfig(), nil, nil)
	ctx := context.Background()

	sess, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	if err := sess.Activate(ctx, "PETR4"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	g.dropStreams()

	waitFor(t, 2*time.Second, func() bool {
		return g.subscribeCount("PETR4") == 2 && m.Stats().Reconnects == 1
	})
	waitFor(t, time.Second, func() bool { return m.Stats().Registrations == 1 })

	g.pushTick("PETR4", 33.00)
	waitFor(t, time.Second, func() bool {
		tick, ok := sess.LiveTick("PETR4")
		return ok && tick.Bid == 33.00
	})
}

func TestManager_ReconnectReportsLostRegistrations(t *testing.T) {
	g := newFakeGateway(t)
	m := NewManager(g.managerConfig(), nil, nil)
	ctx := context.Background()

	sess, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	var (
		mu   sync.Mutex
		lost []string
	)
	sess.OnRegistrationLost(func(ticker string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			t.Errorf("lost %s with nil error", ticker)
		}
		lost = append(lost, ticker)
	})

	for _, ticker := range []string{"PETR4", "VALE3"} {
		if err := sess.Activate(ctx, ticker); err != nil {
			t.Fatalf("Activate(%s) failed: %v", ticker, err)
		}
	}

	g.mu.Lock()
	g.reject["PETR4"] = true
	g.mu.Unlock()
	g.dropStreams()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lost) == 1
	})
	waitFor(t, time.Second, func() bool { return m.Stats().Registrations == 1 })

	mu.Lock()
	defer mu.Unlock()
	if lost[0] != "PETR4" {
		t.Errorf("lost = %v, want [PETR4]", lost)
	}
}

func TestManager_StaleTickIgnored(t *testing.T) {
	g := newFakeGateway(t)
	cfg := g.managerConfig()
	cfg.TickMaxAge = 50 * time.Millisecond
	m := NewManager(cfg, nil, nil)
	ctx := context.Background()

	sess, err := m.Connect(ctx, testCreds())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	if err := sess.Activate(ctx, "PETR4"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	g.pushTick("PETR4", 32.50)
	waitFor(t, time.Second, func() bool {
		_, ok := sess.LiveTick("PETR4")
		return ok
	})

	time.Sleep(100 * time.Millisecond)
	if _, ok := sess.LiveTick("PETR4"); ok {
		t.Error("LiveTick should ignore ticks older than TickMaxAge")
	}
}

func TestManager_StoreFailureIsNotFatal(t *testing.T) {
	g := newFakeGateway(t)
	opened := 0
	open := func(ctx context.Context) (*pgxpool.Pool, error) {
		opened++
		return nil, errors.New("connection refused")
	}
	m := NewManager(g.managerConfig(), open, nil)
	ctx := context.Background()

	if _, err := m.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect(ctx)

	if opened != 1 {
		t.Errorf("pool opened %d times, want 1", opened)
	}
	if m.Pool() != nil {
		t.Error("Pool() should be nil after store failure")
	}
	if m.Stats().StoreOpen {
		t.Error("Stats().StoreOpen = true, want false")
	}
}
