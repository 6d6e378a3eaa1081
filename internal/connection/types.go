package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/quote-relay/internal/api"
	"github.com/rickgao/quote-relay/internal/auth"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")

	// ErrAuthentication means the gateway rejected the credentials.
	ErrAuthentication = errors.New("authentication rejected")
	// ErrTransport means the gateway could not be reached.
	ErrTransport = errors.New("gateway unreachable")
)

// TicksChannel is the stream channel carrying top-of-book updates.
const TicksChannel = "ticks"

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Command is a stream command sent to the gateway.
type Command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params"`
}

// SubscribeParams are parameters for a subscribe command.
type SubscribeParams struct {
	Channels []string `json:"channels"`
	Symbol   string   `json:"symbol"`
}

// UnsubscribeParams are parameters for an unsubscribe command.
type UnsubscribeParams struct {
	SIDs []int64 `json:"sids"`
}

// Response is a command response from the gateway.
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "subscribed", "unsubscribed", "error", "ok"
	Msg  json.RawMessage `json:"msg"`
}

// SubscribedMsg is the message content for a "subscribed" response.
type SubscribedMsg struct {
	SID     int64  `json:"sid"`
	Channel string `json:"channel"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataMessage is a pushed data message.
type DataMessage struct {
	Type string          `json:"type"` // "tick"
	SID  int64           `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

// TickMsg is the message content for a "tick" message.
type TickMsg struct {
	Symbol string `json:"symbol"`
	api.APITick
}

// ClientConfig configures a stream client.
type ClientConfig struct {
	URL          string            // Stream URL (e.g., wss://gateway.example.com/v1/stream)
	Creds        *auth.Credentials // Signs the handshake (nil = no auth)
	PingInterval time.Duration     // Keepalive ping period
	PingTimeout  time.Duration     // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration     // Write deadline for sends
	BufferSize   int               // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// ManagerConfig configures the ConnectionManager.
type ManagerConfig struct {
	RestURL           string        // Gateway REST base URL
	WSURL             string        // Gateway stream URL
	APITimeout        time.Duration // REST request timeout
	APIRetries        int           // REST retries on 5xx/429
	CommandTimeout    time.Duration // Timeout for subscribe/unsubscribe commands
	TickMaxAge        time.Duration // Cached live ticks older than this are ignored
	PingTimeout       time.Duration // Stream staleness threshold
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		APITimeout:        10 * time.Second,
		APIRetries:        2,
		CommandTimeout:    5 * time.Second,
		TickMaxAge:        10 * time.Second,
		PingTimeout:       60 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Connected     bool  `json:"connected"`
	StreamUp      bool  `json:"stream_up"`
	Registrations int   `json:"registrations"`
	CachedTicks   int   `json:"cached_ticks"`
	Reconnects    int64 `json:"reconnects"`
	StoreOpen     bool  `json:"store_open"`
}
