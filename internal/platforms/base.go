// Package platforms contains the concrete chat backend adapters. Each
// adapter implements core.Platform and owns its connection state; inbound
// events flow through the shared Base into the propagation engine.
package platforms

import (
	"context"
	"log"

	"github.com/kobosh/crosschat-go/internal/core"
)

// InboundEvent is a platform-native "a new message arrived" notification,
// normalized by the adapter before handing it to Base.
type InboundEvent struct {
	ChannelID   string // native channel id
	MessageID   string // native message id
	Sender      core.User
	Content     string
	ReplyToID   string // native id of the message being replied to, if any
	Attachments []string
}

// Base provides the shared inbound-event handling for all adapters: resolve
// the native channel, wrap the event into the identity model, and broadcast.
type Base struct {
	PlatformName  string
	Registry      *core.Registry
	Relay         *core.Relay
	DefaultAvatar string
}

// HandleInbound routes a new inbound message. Events on channels the
// registry doesn't know are dropped: not mirrored, not queued, not retried.
// Returns the registered Message, or nil when the event was dropped.
func (b *Base) HandleInbound(ctx context.Context, ev InboundEvent) *core.Message {
	ch := b.Registry.FindChannel(ev.ChannelID, b.PlatformName)
	if ch == nil {
		log.Printf("[%s] dropping message %s: channel %s not registered", b.PlatformName, ev.MessageID, ev.ChannelID)
		return nil
	}

	sender := ev.Sender
	if sender.AvatarURL == "" {
		sender.AvatarURL = b.DefaultAvatar
	}
	b.Registry.AddUser(sender)

	attachments := make([]core.Attachment, 0, len(ev.Attachments))
	for _, url := range ev.Attachments {
		attachments = append(attachments, core.Attachment{FileURL: url})
	}

	origin := &core.OriginalMessage{
		Content:     ev.Content,
		ID:          ev.MessageID,
		Platform:    b.PlatformName,
		User:        sender,
		Channel:     ch,
		Attachments: attachments,
	}
	msg := core.NewMessage(origin)

	if ev.ReplyToID != "" {
		if prev := b.Registry.FindMessage(ev.ReplyToID, b.PlatformName); prev != nil {
			msg.ReplyTo = prev.Origin
		}
	}

	b.Registry.AddMessage(msg)
	b.Relay.Broadcast(ctx, msg)
	return msg
}

// HandleEdit routes a platform-native edit event: when the native id maps to
// a known Message, the edit is propagated everywhere. Unknown ids are dropped.
func (b *Base) HandleEdit(ctx context.Context, nativeMessageID, newContent string) {
	msg := b.Registry.FindMessage(nativeMessageID, b.PlatformName)
	if msg == nil {
		return
	}
	b.Relay.Edit(ctx, msg, newContent)
}

// HandleDelete routes a platform-native delete event the same way.
func (b *Base) HandleDelete(ctx context.Context, nativeMessageID string) {
	msg := b.Registry.FindMessage(nativeMessageID, b.PlatformName)
	if msg == nil {
		return
	}
	b.Relay.Delete(ctx, msg)
}
