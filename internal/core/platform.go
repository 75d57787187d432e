package core

import "context"

// Platform is the capability set every chat backend adapter implements.
// Adapters hold their own connection state; the core only talks through this
// interface and never sees platform-specific types.
//
// A channel without a native id for the adapter's platform means "this
// channel is not mirrored here": SendMessage returns an empty id without
// error, EditMessage and DeleteMessage are no-ops.
type Platform interface {
	// Name returns the stable platform key (e.g. "telegram", "discord").
	Name() string

	// Connect establishes the long-lived session. Returning nil means the
	// adapter accepts further calls, not that it is fully ready; readiness is
	// reported by HealthCheck.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Idempotent.
	Disconnect(ctx context.Context) error

	// HealthCheck reports true only once the adapter can reliably send and
	// receive. Non-blocking.
	HealthCheck() bool

	// SendMessage posts content to the channel rendered as the given user
	// (impersonation where the platform supports it). When reply is non-nil
	// the adapter prepends the reply preamble; attachments are relayed as
	// follow-up posts. Returns the platform-native id of the created message.
	SendMessage(ctx context.Context, ch *Channel, content string, from User, reply *OriginalMessage, attachments []Attachment) (string, error)

	// EditMessage rewrites the native message identified by the message's id
	// for this platform. No-op when the message has no id here.
	EditMessage(ctx context.Context, ch *Channel, msg *Message, newContent string) error

	// DeleteMessage removes the native message. No-op when the message has no
	// id here.
	DeleteMessage(ctx context.Context, ch *Channel, msg *Message) error

	// GetMessage fetches the current remote state of the message, or nil when
	// it cannot be found.
	GetMessage(ctx context.Context, ch *Channel, msg *Message) (*OriginalMessage, error)
}
