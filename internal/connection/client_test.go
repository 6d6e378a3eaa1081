package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rickgao/quote-relay/internal/auth"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:          url,
		PingInterval: time.Second,
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}

	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_SignedHandshake(t *testing.T) {
	creds := &auth.Credentials{Login: "12345", Password: "secret"}
	gotLogin := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := map[string]string{
			auth.HeaderLogin:     r.Header.Get(auth.HeaderLogin),
			auth.HeaderTimestamp: r.Header.Get(auth.HeaderTimestamp),
			auth.HeaderSignature: r.Header.Get(auth.HeaderSignature),
		}
		if err := creds.Verify(headers, http.MethodGet, auth.StreamPath); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		gotLogin <- headers[auth.HeaderLogin]
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.Creds = creds
	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if login := <-gotLogin; login != "12345" {
		t.Errorf("login = %q, want %q", login, "12345")
	}
}

func TestClient_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("Connect() error = %v, want ErrAuthentication", err)
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"id":1,"cmd":"subscribe"}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(received) == string(testMsg)
	})
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"type":"tick","sid":1,"msg":{"symbol":"PETR4","bid":"1"}}`,
		`{"type":"tick","sid":1,"msg":{"symbol":"PETR4","bid":"2"}}`,
		`{"type":"tick","sid":1,"msg":{"symbol":"PETR4","bid":"3"}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_ServerCloseReportsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Return immediately, closing the connection
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connection error")
	}

	waitFor(t, time.Second, func() bool { return !client.IsConnected() })
}

func TestClient_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read, so pongs are never produced
		time.Sleep(2 * time.Second)
	})
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 50 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err != ErrStaleConnection {
			t.Errorf("error = %v, want ErrStaleConnection", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stale detection")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testClientConfig("ws://localhost:12345"), nil)

	if err := client.Send([]byte("test")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestTypes_Command(t *testing.T) {
	cmd := Command{
		ID:  1,
		Cmd: "subscribe",
		Params: SubscribeParams{
			Channels: []string{TicksChannel},
			Symbol:   "PETR4",
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	want := `{"id":1,"cmd":"subscribe","params":{"channels":["ticks"],"symbol":"PETR4"}}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}
}

func TestTypes_TickMsg(t *testing.T) {
	data := `{"type":"tick","sid":7,"msg":{"symbol":"VALE3","bid":"53.40","ask":"53.42","last":"53.41","volume":10,"time_msc":1700000000000}}`

	var msg DataMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != "tick" || msg.SID != 7 {
		t.Errorf("DataMessage = %+v", msg)
	}

	var tick TickMsg
	if err := json.Unmarshal(msg.Msg, &tick); err != nil {
		t.Fatalf("unmarshal tick failed: %v", err)
	}
	if tick.Symbol != "VALE3" || tick.Bid != "53.40" || tick.TimeMsc != 1700000000000 {
		t.Errorf("TickMsg = %+v", tick)
	}
}

func TestTryParseResponse(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"subscribed", `{"id":1,"type":"subscribed","msg":{"sid":42,"channel":"ticks"}}`, true},
		{"error", `{"id":2,"type":"error","msg":{"code":"6","message":"unknown symbol"}}`, true},
		{"data message", `{"type":"tick","sid":1,"msg":{}}`, false},
		{"unknown type with id", `{"id":3,"type":"tick"}`, false},
		{"garbage", `{"id":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tryParseResponse([]byte(tt.data))
			if ok != tt.want {
				t.Errorf("tryParseResponse() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.PingTimeout != 60*time.Second {
		t.Errorf("PingTimeout = %v, want 60s", clientCfg.PingTimeout)
	}

	mgrCfg := DefaultManagerConfig()
	if mgrCfg.TickMaxAge != 10*time.Second {
		t.Errorf("TickMaxAge = %v, want 10s", mgrCfg.TickMaxAge)
	}
	if mgrCfg.ReconnectBaseWait != time.Second || mgrCfg.ReconnectMaxWait != 60*time.Second {
		t.Errorf("reconnect waits = (%v, %v), want (1s, 60s)", mgrCfg.ReconnectBaseWait, mgrCfg.ReconnectMaxWait)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
