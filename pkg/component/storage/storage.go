// Package storage keeps the infrastructure clients of the service (database,
// redis, mongodb, etcd) behind one registry so that health checks and
// shutdown treat them uniformly.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/pool"
)

// Client is implemented by every infrastructure client.
type Client interface {
	// Name returns the client kind, e.g. "redis".
	Name() string
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// HealthStatus is the result of pinging one client.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Manager is a concurrency-safe registry of named clients.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
	pool    *pool.Pool
}

// NewManager creates an empty manager. Health checks run on p when it is
// not nil, otherwise on plain goroutines.
func NewManager(p *pool.Pool) *Manager {
	return &Manager{
		clients: make(map[string]Client),
		pool:    p,
	}
}

// Register adds client under name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" || client == nil {
		return errors.ErrInvalidParam.WithMessage("client name and client are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		return errors.ErrAlreadyExists.WithMessagef("client %q is already registered", name)
	}
	m.clients[name] = client
	return nil
}

// Get returns the client registered under name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[name]
	if !exists {
		return nil, errors.ErrNotFound.WithMessagef("client %q not found", name)
	}
	return client, nil
}

// Has reports whether a client is registered under name.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[name]
	return ok
}

// List returns the registered names in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll pings every client concurrently.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	m.mu.RLock()
	clients := make(map[string]Client, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.mu.RUnlock()

	statuses := make(map[string]HealthStatus, len(clients))
	var statusMu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range clients {
		name, client := name, client
		wg.Add(1)
		task := func() {
			defer wg.Done()

			start := time.Now()
			err := client.Ping(ctx)
			status := HealthStatus{Name: name, Healthy: err == nil, Latency: time.Since(start)}
			if err != nil {
				status.Error = err.Error()
			}

			statusMu.Lock()
			statuses[name] = status
			statusMu.Unlock()
		}

		// 池满或已关闭时退回普通 goroutine
		if m.pool == nil || m.pool.Submit(task) != nil {
			go task()
		}
	}

	wg.Wait()
	return statuses
}

// AllHealthy reports whether every client answers its ping.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, status := range m.HealthCheckAll(ctx) {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes and unregisters every client, returning the first error.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client '%s': %w", name, err)
		}
		delete(m.clients, name)
	}
	return firstErr
}
