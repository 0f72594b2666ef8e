// Package presence provides the presence-mirror backends: an in-memory
// mirror for tests and local runs, and a Redis mirror so other services can
// query who is online.
package presence

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// InMemoryMirror implements chat.PresenceMirror with a plain map.
type InMemoryMirror struct {
	mu      sync.RWMutex
	entries map[string]chat.ConnectionInfo
}

// NewInMemoryMirror creates an empty mirror.
func NewInMemoryMirror() *InMemoryMirror {
	return &InMemoryMirror{entries: make(map[string]chat.ConnectionInfo)}
}

func (m *InMemoryMirror) Set(_ context.Context, userID string, info chat.ConnectionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = info
	return nil
}

func (m *InMemoryMirror) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

func (m *InMemoryMirror) Close() error {
	return nil
}

// Get is a read-side helper for tests.
func (m *InMemoryMirror) Get(userID string) (chat.ConnectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.entries[userID]
	return info, ok
}
