package channel

import (
	"fmt"
	"sort"
	"sync"
)

// Registry indexes platform adapters by type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Platform]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Platform]Adapter)}
}

// Register adds an adapter. Registering the same platform twice is an error.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	platform := adapter.Platform()
	if _, exists := r.adapters[platform]; exists {
		return fmt.Errorf("adapter already registered: %s", platform)
	}
	r.adapters[platform] = adapter
	return nil
}

// Get returns the adapter for a platform.
func (r *Registry) Get(platform Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[platform]
	return adapter, ok
}

// GetSender returns the adapter's Sender when it supports outbound delivery.
func (r *Registry) GetSender(platform Platform) (Sender, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetDescriptor returns the descriptor for a platform.
func (r *Registry) GetDescriptor(platform Platform) (Descriptor, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// ListDescriptors returns all descriptors sorted by platform.
func (r *Registry) ListDescriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Descriptor, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		items = append(items, adapter.Descriptor())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Platform < items[j].Platform
	})
	return items
}
