package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/quote-relay/internal/api"
	"github.com/rickgao/quote-relay/internal/auth"
	"github.com/rickgao/quote-relay/internal/database"
)

// Manager establishes and supervises the gateway session and the reference-store pool.
type Manager interface {
	// Connect authenticates, opens the stream and, if configured, the store pool.
	// Calling Connect while connected returns the existing session.
	Connect(ctx context.Context, creds *auth.Credentials) (Session, error)

	// Healthy reports whether the session is connected and its stream is up.
	Healthy() bool

	// Disconnect releases every live registration and closes the session and pool.
	// It is idempotent.
	Disconnect(ctx context.Context) error

	// Pool returns the reference-store pool, or nil when none is open.
	Pool() *pgxpool.Pool

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// manager implements the Manager interface.
type manager struct {
	cfg      ManagerConfig
	openPool database.OpenFunc
	logger   *slog.Logger

	// Serializes Connect and Disconnect.
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active atomic.Pointer[session]
	pool   atomic.Pointer[pgxpool.Pool]

	reconnects atomic.Int64
}

// NewManager creates a new ConnectionManager. openPool may be nil.
func NewManager(cfg ManagerConfig, openPool database.OpenFunc, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = def.APITimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.TickMaxAge <= 0 {
		cfg.TickMaxAge = def.TickMaxAge
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}

	return &manager{
		cfg:      cfg,
		openPool: openPool,
		logger:   logger.With("component", "connection"),
	}
}

// Connect establishes the gateway session.
func (m *manager) Connect(ctx context.Context, creds *auth.Credentials) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.active.Load(); s != nil {
		return s, nil
	}

	rest := api.NewClient(m.cfg.RestURL, creds,
		api.WithTimeout(m.cfg.APITimeout),
		api.WithRetries(m.cfg.APIRetries, 500*time.Millisecond),
		api.WithLogger(m.logger),
	)

	info, err := rest.GetSession(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if !info.FeedUp {
		m.logger.Warn("gateway reports market feed down, continuing", "server", info.Server)
	}

	clientCfg := DefaultClientConfig()
	clientCfg.URL = m.cfg.WSURL
	clientCfg.Creds = creds
	clientCfg.PingTimeout = m.cfg.PingTimeout

	s := newSession(rest, clientCfg, m.cfg, m.logger)
	c := NewClient(clientCfg, m.logger)
	if err := c.Connect(ctx); err != nil {
		if isAuth(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: dial stream: %w", ErrTransport, err)
	}
	s.setClient(c)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.readLoop(runCtx, s, c)

	if m.openPool != nil {
		pool, err := m.openPool(ctx)
		if err != nil {
			m.logger.Warn("reference store unavailable, continuing without metadata", "error", err)
		} else {
			m.pool.Store(pool)
		}
	}

	m.active.Store(s)

	m.logger.Info("gateway session established",
		"server", info.Server,
		"feed_up", info.FeedUp,
		"store", m.pool.Load() != nil,
	)

	return s, nil
}

// Healthy reports session and stream liveness.
func (m *manager) Healthy() bool {
	s := m.active.Load()
	return s != nil && s.streamUp()
}

// Disconnect tears the session down.
func (m *manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.active.Load()
	if s == nil {
		return nil
	}

	// Release errors never prevent shutdown
	for _, ticker := range s.Registered() {
		rctx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
		if err := s.Release(rctx, ticker); err != nil {
			m.logger.Warn("release failed during disconnect", "ticker", ticker, "error", err)
		}
		cancel()
	}

	m.active.Store(nil)
	s.close()
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("disconnect timeout, abandoning stream goroutines")
	}

	if pool := m.pool.Swap(nil); pool != nil {
		pool.Close()
	}

	m.logger.Info("gateway session closed")
	return nil
}

// Pool returns the reference-store pool.
func (m *manager) Pool() *pgxpool.Pool {
	return m.pool.Load()
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	stats := ManagerStats{
		Reconnects: m.reconnects.Load(),
		StoreOpen:  m.pool.Load() != nil,
	}
	if s := m.active.Load(); s != nil {
		stats.Connected = true
		stats.StreamUp = s.streamUp()
		stats.Registrations, stats.CachedTicks = s.counts()
	}
	return stats
}

// readLoop routes stream messages until ctx is cancelled or the stream fails.
func (m *manager) readLoop(ctx context.Context, s *session, c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-c.Errors():
			m.logger.Warn("stream error", "error", err)
			m.wg.Add(1)
			go m.reconnect(ctx, s)
			return

		case msg := <-c.Messages():
			s.handleMessage(msg)
		}
	}
}

// reconnect re-dials the stream with exponential backoff and re-registers
// every symbol that was active before the drop.
func (m *manager) reconnect(ctx context.Context, s *session) {
	defer m.wg.Done()

	wait := m.cfg.ReconnectBaseWait
	maxWait := m.cfg.ReconnectMaxWait

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		m.logger.Info("attempting stream reconnection", "wait", wait)

		if old := s.current(); old != nil {
			old.Close()
		}
		s.failPending()

		c := NewClient(s.clientCfg, m.logger)
		if err := c.Connect(ctx); err != nil {
			m.logger.Warn("stream reconnection failed", "error", err)

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		s.setClient(c)
		m.reconnects.Add(1)

		// Read loop must run before re-registering so responses are routed
		m.wg.Add(1)
		go m.readLoop(ctx, s, c)

		restored, failed := s.reregister(ctx)
		m.logger.Info("stream reconnected", "restored", restored, "failed", failed)
		return
	}
}
