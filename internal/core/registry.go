package core

import (
	"log"
	"sync"
)

// Registry is the single source of truth for which platforms, channels,
// users, and messages exist. It is constructed once and injected into every
// component; there is no package-level instance.
//
// Collections are mutated both from the orchestration goroutine (startup
// registration) and from adapter callbacks running on their receive
// goroutines, so every operation takes the mutex.
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]Platform
	order     []string
	channels  []*Channel
	users     []User
	messages  []*Message
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		platforms: make(map[string]Platform),
	}
}

// RegisterPlatform inserts a platform keyed by its name, preserving
// registration order. A duplicate name overwrites the previous entry (last
// write wins) and is logged.
func (r *Registry) RegisterPlatform(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.platforms[name]; exists {
		log.Printf("[Registry] platform %q registered twice, replacing previous", name)
	} else {
		r.order = append(r.order, name)
	}
	r.platforms[name] = p
}

// Platform returns the platform registered under name.
func (r *Registry) Platform(name string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[name]
	return p, ok
}

// PlatformNames returns all platform names in registration order.
func (r *Registry) PlatformNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AddChannel registers a channel. Append-only.
func (r *Registry) AddChannel(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, ch)
}

// AddUser records a user snapshot. Append-only.
func (r *Registry) AddUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, u)
}

// AddMessage registers a message for the life of the process. Append-only.
func (r *Registry) AddMessage(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

// FindChannel resolves a platform-native channel id to its cross-platform
// Channel: the first registered channel whose id for that platform matches.
// Returns nil when nothing matches. Used to route inbound events.
func (r *Registry) FindChannel(nativeID, platform string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.channels {
		if id, ok := ch.ID(platform); ok && id == nativeID {
			return ch
		}
	}
	return nil
}

// FindMessage resolves a platform-native message id to its cross-platform
// Message, or nil. Used to attach reply metadata and to route inbound edit
// and delete events.
func (r *Registry) FindMessage(nativeID, platform string) *Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.messages {
		if id, ok := m.ID(platform); ok && id == nativeID {
			return m
		}
	}
	return nil
}

// Channels returns a snapshot of all registered channels.
func (r *Registry) Channels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Messages returns a snapshot of all registered messages.
func (r *Registry) Messages() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Message, len(r.messages))
	copy(out, r.messages)
	return out
}
