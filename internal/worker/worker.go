package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quote-relay/internal/activation"
	"github.com/rickgao/quote-relay/internal/auth"
	"github.com/rickgao/quote-relay/internal/broadcast"
	"github.com/rickgao/quote-relay/internal/catalog"
	"github.com/rickgao/quote-relay/internal/connection"
	"github.com/rickgao/quote-relay/internal/model"
	"github.com/rickgao/quote-relay/internal/resolver"
	"github.com/rickgao/quote-relay/internal/subscription"
)

var (
	// ErrNotRunning is returned by operations that need a running worker.
	ErrNotRunning = errors.New("worker not running")
	// ErrUnavailable is the single outcome for any quote that cannot be produced.
	ErrUnavailable = resolver.ErrUnavailable
)

// Config holds worker settings.
type Config struct {
	DefaultSymbols []string      // Eagerly activated at start
	StopTimeout    time.Duration // Bound on waiting for the loop to exit
	Mode           string        // Reported in status
	Version        string        // Reported in status
}

// Deps are the collaborators the worker drives.
type Deps struct {
	Connections connection.Manager
	Credentials *auth.Credentials
	Catalog     *catalog.Catalog
	Activation  *activation.Manager
	Resolver    *resolver.Resolver
	Registry    *subscription.Registry
	Loop        *broadcast.Loop
	Calendar    *catalog.Calendar // Optional
}

// Worker is the quote engine.
type Worker struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   model.WorkerState
	session connection.Session
	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Out-of-band activations triggered by subscribe.
	hooks sync.WaitGroup
}

// New creates a Worker in the NotStarted state.
func New(cfg Config, deps Deps, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	w := &Worker{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "worker"),
		now:    time.Now,
		state:  model.WorkerNotStarted,
	}
	deps.Registry.OnSubscribe(w.onSubscribe)
	return w
}

// State returns the lifecycle state.
func (w *Worker) State() model.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s model.WorkerState) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	w.logger.Info("state changed", "from", prev, "to", s)
}

// Start connects, loads the catalog, eagerly activates the default symbols
// and launches the broadcast loop. It only fails when the gateway connection
// cannot be established. Calling Start while running is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.State() == model.WorkerRunning {
		return nil
	}
	w.setState(model.WorkerStarting)

	sess, err := w.deps.Connections.Connect(ctx, w.deps.Credentials)
	if err != nil {
		w.setState(model.WorkerNotStarted)
		return fmt.Errorf("connect: %w", err)
	}

	if err := w.deps.Catalog.Load(ctx, sess); err != nil {
		w.logger.Error("catalog load failed, keeping previous catalog",
			"error", err,
			"symbols", w.deps.Catalog.Size(),
		)
	}

	w.deps.Activation.Bind(sess)
	w.deps.Resolver.Bind(sess)
	sess.OnRegistrationLost(w.deps.Activation.MarkLost)

	defaults := w.deps.Catalog.Filter(w.cfg.DefaultSymbols)
	if missing := len(w.cfg.DefaultSymbols) - len(defaults); missing > 0 {
		w.logger.Warn("default symbols missing from catalog", "missing", missing)
	}
	w.deps.Activation.DefaultPass(ctx, defaults)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	w.mu.Lock()
	w.session = sess
	w.runCtx = runCtx
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.deps.Loop.Run(runCtx)
	}()

	w.setState(model.WorkerRunning)
	w.logger.Info("worker running",
		"catalog", w.deps.Catalog.Size(),
		"active", len(w.deps.Activation.ActiveSymbols()),
		"failed", len(w.deps.Activation.FailedSymbols()),
	)
	return nil
}

// Stop halts the loop, releases active symbols and disconnects.
// Calling Stop when not running is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.State() != model.WorkerRunning {
		return nil
	}

	w.mu.Lock()
	w.state = model.WorkerStopping
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	w.logger.Info("state changed", "from", model.WorkerRunning, "to", model.WorkerStopping)

	cancel()
	if !w.wait(done) {
		w.logger.Warn("broadcast loop did not stop in time", "timeout", w.cfg.StopTimeout)
	}

	hooksDone := make(chan struct{})
	go func() {
		w.hooks.Wait()
		close(hooksDone)
	}()
	w.wait(hooksDone)

	w.mu.RLock()
	sess := w.session
	w.mu.RUnlock()
	if sess != nil {
		sess.OnRegistrationLost(nil)
	}

	released := w.deps.Activation.ReleaseAll(ctx)
	w.deps.Activation.Bind(nil)
	w.deps.Resolver.Bind(nil)

	if err := w.deps.Connections.Disconnect(ctx); err != nil {
		w.logger.Warn("disconnect failed", "error", err)
	}
	w.deps.Activation.Reset()

	w.mu.Lock()
	w.session = nil
	w.runCtx, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	w.setState(model.WorkerStopped)
	w.logger.Info("worker stopped", "released", released)
	return nil
}

// wait blocks until ch closes or StopTimeout passes.
func (w *Worker) wait(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(w.cfg.StopTimeout):
		return false
	}
}

// onSubscribe gives a freshly subscribed symbol a head start on activation.
func (w *Worker) onSubscribe(room, ticker string) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != model.WorkerRunning {
		return
	}
	if !w.deps.Catalog.Contains(ticker) || w.deps.Activation.IsActive(ticker) {
		return
	}

	w.deps.Activation.Grant(ticker)

	ctx := w.runCtx
	w.hooks.Add(1)
	go func() {
		defer w.hooks.Done()
		if !w.deps.Activation.TryLazy(ctx, ticker) {
			w.logger.Debug("out-of-band activation failed", "room", room, "ticker", ticker)
		}
	}()
}
