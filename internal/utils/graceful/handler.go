package graceful

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/catherinevee/reghook/internal/logger"
)

const defaultTimeout = 30 * time.Second

type namedHook struct {
	name string
	fn   func() error
}

// Handler runs registered shutdown hooks, newest first, when the process
// receives SIGINT or SIGTERM.
type Handler struct {
	log     logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []namedHook

	runOnce  sync.Once
	stopOnce sync.Once
	stop     chan struct{}
}

// NewHandler creates a handler with the given total shutdown timeout.
func NewHandler(timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		log:     logger.New("graceful"),
		timeout: timeout,
		stop:    make(chan struct{}),
	}
}

// OnShutdown registers a hook. Hooks run in reverse registration order so
// outer layers stop before the resources they depend on.
func (h *Handler) OnShutdown(name string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: fn})
}

// Trigger unblocks Wait without an OS signal.
func (h *Handler) Trigger() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Wait blocks until a shutdown signal arrives, then runs the hooks.
func (h *Handler) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		h.log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case <-h.stop:
	}

	h.Shutdown()
}

// Shutdown runs the hooks once, bounded by the handler timeout. Safe to
// call from multiple goroutines.
func (h *Handler) Shutdown() {
	h.runOnce.Do(h.runHooks)
}

func (h *Handler) runHooks() {
	h.log.Info("Initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		h.mu.Lock()
		hooks := make([]namedHook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(); err != nil {
				h.log.Error("Shutdown hook failed",
					logger.String("hook", hooks[i].name),
					logger.Error(err))
			}
		}
	}()

	select {
	case <-done:
		h.log.Info("Graceful shutdown completed")
	case <-ctx.Done():
		h.log.Warn("Shutdown timeout exceeded, forcing exit")
	}
}
