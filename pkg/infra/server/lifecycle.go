// Package server runs the long-lived components of a service (HTTP server,
// directory watcher, service registration) under one lifecycle.
package server

import "context"

// Lifecycle defines the lifecycle interface for servers.
type Lifecycle interface {
	// Start starts the component. It must return once the component is
	// running; long-running work belongs in goroutines.
	Start(ctx context.Context) error
	// Stop stops the component gracefully.
	Stop(ctx context.Context) error
}

// Runnable represents a component that can be started and stopped.
type Runnable interface {
	Lifecycle
	// Name returns the component name for identification.
	Name() string
}

// Hook adapts a pair of functions into a Runnable.
type Hook struct {
	HookName string
	OnStart  func(ctx context.Context) error
	OnStop   func(ctx context.Context) error
}

var _ Runnable = (*Hook)(nil)

// Name implements Runnable.
func (h *Hook) Name() string { return h.HookName }

// Start implements Lifecycle.
func (h *Hook) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

// Stop implements Lifecycle.
func (h *Hook) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}
