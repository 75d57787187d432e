// Package core holds the cross-platform identity model: the entities shared
// between the registry, the propagation engine, and platform adapters.
package core

import (
	"fmt"
	"sync"
)

// DefaultAvatarURL is used when a user has no profile picture.
const DefaultAvatarURL = "https://www.gravatar.com/avatar/?d=mp"

// User is a platform-agnostic display identity. Each inbound message carries
// a fresh snapshot; users are not deduplicated.
type User struct {
	DisplayName string
	Username    string
	AvatarURL   string
}

// FullName renders the display string used when relaying on behalf of a user.
func (u User) FullName() string {
	return fmt.Sprintf("%s(@%s)", u.DisplayName, u.Username)
}

// Avatar returns the user's profile picture URL, falling back to the default.
func (u User) Avatar() string {
	if u.AvatarURL == "" {
		return DefaultAvatarURL
	}
	return u.AvatarURL
}

// Attachment is a single relayed file reference.
type Attachment struct {
	FileURL string
}

// Channel is a cross-platform conversation surface. It maps each platform
// name to at most one native channel id, plus a string-keyed metadata bag for
// adapter-specific handles (e.g. a webhook credential) that the core never
// interprets.
type Channel struct {
	Name string

	mu    sync.RWMutex
	ids   map[string]string
	extra map[string]any
}

// NewChannel creates an empty channel with the given human label.
func NewChannel(name string) *Channel {
	return &Channel{
		Name:  name,
		ids:   make(map[string]string),
		extra: make(map[string]any),
	}
}

// ID returns the native channel id for a platform, if one was assigned.
func (c *Channel) ID(platform string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[platform]
	return id, ok
}

// SetID assigns the native channel id for a platform.
func (c *Channel) SetID(platform, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[platform] = id
}

// Extra returns an adapter-specific metadata value.
func (c *Channel) Extra(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.extra[key]
	return v, ok
}

// ExtraString returns a metadata value as a string, or "" when absent or not
// a string.
func (c *Channel) ExtraString(key string) string {
	v, ok := c.Extra(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SetExtra stores an adapter-specific metadata value.
func (c *Channel) SetExtra(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra[key] = value
}

// OriginalMessage is the immutable record of one concrete send or receive
// event on exactly one platform.
type OriginalMessage struct {
	Content     string
	ID          string
	Platform    string
	User        User
	Channel     *Channel
	Attachments []Attachment
}

// Message is the cross-platform logical identity of a relayed message. It
// tracks one native id per platform where the message has been mirrored,
// seeded with the origin platform's id. The id map only grows; edit replaces
// content; delete changes nothing locally.
//
// Ids are written from the scheduler goroutine during broadcast and read from
// the orchestration goroutine, so access goes through the mutex.
type Message struct {
	Channel *Channel
	User    User
	Origin  *OriginalMessage
	ReplyTo *OriginalMessage

	mu      sync.RWMutex
	content string
	ids     map[string]string
}

// NewMessage wraps an OriginalMessage into its cross-platform identity,
// seeding the id map with the origin platform's native id.
func NewMessage(origin *OriginalMessage) *Message {
	return &Message{
		Channel: origin.Channel,
		User:    origin.User,
		Origin:  origin,
		content: origin.Content,
		ids:     map[string]string{origin.Platform: origin.ID},
	}
}

// Content returns the current logical content.
func (m *Message) Content() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content
}

// SetContent replaces the logical content. Called by the propagation engine
// after an edit sweep has been dispatched.
func (m *Message) SetContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = content
}

// ID returns the native message id for a platform, if the message was
// mirrored there.
func (m *Message) ID(platform string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[platform]
	return id, ok
}

// SetID records the native id returned by a platform's send.
func (m *Message) SetID(platform, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[platform] = id
}

// IDs returns a copy of the platform → native id map.
func (m *Message) IDs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.ids))
	for k, v := range m.ids {
		out[k] = v
	}
	return out
}
