package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc describes a graceful shutdown callback.
type ShutdownFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Manager owns the process lifetime: it turns termination signals into
// context cancellation and stops registered components in reverse order of
// registration, so the HTTP server goes down before the stores it uses.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []hook

	once   sync.Once
	result error
}

func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown hook.
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// RegisterCloser adds a hook for components that stop without a context.
func (m *Manager) RegisterCloser(name string, fn func() error) {
	if fn == nil {
		return
	}
	m.Register(name, func(context.Context) error { return fn() })
}

// Shutdown runs every hook once, even if an earlier hook failed, and joins
// their errors. Later calls return the first result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() {
		m.result = m.run(ctx)
	})
	return m.result
}

func (m *Manager) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	var result error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		started := time.Now()
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		m.logger.Info("component stopped",
			zap.String("component", h.name),
			zap.Duration("took", time.Since(started)),
		)
	}
	return result
}

// Listen returns a context cancelled on SIGINT or SIGTERM.
func (m *Manager) Listen(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
