package shutdown

import (
	"context"
	"sync"

	"github.com/assetdesk/tradefront/pkg/logger"
)

// Handler is a shutdown callback. It must return when its work is done or the
// context expires.
type Handler func(ctx context.Context)

// Manager runs registered shutdown callbacks concurrently with a deadline.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a callback to run during Shutdown.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown executes all callbacks and blocks until they finish or ctx expires.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := make([]Handler, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	logger.Infof("shutting down, %d callback(s)", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h Handler) {
			defer wg.Done()
			h(ctx)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
