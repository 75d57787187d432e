package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kobosh/crosschat-go/internal/core"
)

// Channel metadata keys for the per-channel send webhook. Discord webhooks
// render an arbitrary username and avatar, which is how relayed messages
// keep their original sender's identity.
const (
	ExtraDiscordWebhookID    = "discord_webhook_id"
	ExtraDiscordWebhookToken = "discord_webhook_token"
)

// Gateway intents: GUILDS | GUILD_MESSAGES | MESSAGE_CONTENT.
const discordIntents = 1 | 1<<9 | 1<<15

// Discord implements the Discord adapter: webhook REST calls for outbound
// (sender impersonation), the gateway WebSocket for inbound events.
type Discord struct {
	Base
	Token string

	client    *http.Client
	apiBase   string // https://discord.com/api/v10, injectable for tests
	botUserID string
	ready     atomic.Bool
	cancelFn  context.CancelFunc
}

// NewDiscord creates a Discord adapter.
func NewDiscord(token string, base Base) *Discord {
	base.PlatformName = "discord"
	return &Discord{
		Base:    base,
		Token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: "https://discord.com/api/v10",
	}
}

func (d *Discord) Name() string      { return d.PlatformName }
func (d *Discord) HealthCheck() bool { return d.ready.Load() }

// Connect starts the gateway session in its own goroutine. Readiness is
// reported once the gateway READY dispatch arrives.
func (d *Discord) Connect(ctx context.Context) error {
	if d.Token == "" {
		return fmt.Errorf("discord bot token not configured")
	}
	gwCtx, cancel := context.WithCancel(context.Background())
	d.cancelFn = cancel
	go d.runGateway(gwCtx)
	return nil
}

// Disconnect stops the gateway session. Idempotent.
func (d *Discord) Disconnect(ctx context.Context) error {
	d.ready.Store(false)
	if d.cancelFn != nil {
		d.cancelFn()
		d.cancelFn = nil
	}
	return nil
}

// runGateway reconnects the gateway with a flat backoff until cancelled.
func (d *Discord) runGateway(ctx context.Context) {
	for {
		if err := d.gatewaySession(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Discord] gateway session ended: %v", err)
		}
		d.ready.Store(false)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

type gatewayFrame struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  *int64          `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// gatewaySession runs one connect → identify → read cycle.
func (d *Discord) gatewaySession(ctx context.Context) error {
	var gw struct {
		URL string `json:"url"`
	}
	if err := d.rest(ctx, http.MethodGet, "/gateway/bot", nil, &gw); err != nil {
		return fmt.Errorf("get gateway url: %w", err)
	}

	raw, _, err := websocket.DefaultDialer.DialContext(ctx, gw.URL+"?v=10&encoding=json", nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn := &wsConn{Conn: raw}
	defer conn.CloseSafe()

	// First frame must be HELLO with the heartbeat interval.
	var hello gatewayFrame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	interval := helloInterval(hello.D)

	identify := map[string]any{
		"op": 2,
		"d": map[string]any{
			"token":   d.Token,
			"intents": discordIntents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "crosschat",
				"device":  "crosschat",
			},
		},
	}
	if err := conn.WriteJSONSafe(identify); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	var lastSeq atomic.Int64
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go d.heartbeat(hbCtx, conn, time.Duration(interval)*time.Millisecond, &lastSeq)

	for {
		var frame gatewayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("gateway read: %w", err)
			}
			return nil
		}
		if frame.S != nil {
			lastSeq.Store(*frame.S)
		}
		switch frame.Op {
		case 0:
			d.dispatch(ctx, frame)
		case 1:
			conn.WriteJSONSafe(map[string]any{"op": 1, "d": lastSeq.Load()})
		case 7, 9:
			return fmt.Errorf("gateway requested reconnect (op %d)", frame.Op)
		}
	}
}

// helloInterval extracts the heartbeat interval (ms) from a HELLO payload,
// falling back to the documented default on a malformed or missing value.
func helloInterval(d json.RawMessage) int {
	var hello struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(d, &hello); err != nil {
		log.Printf("[Discord] decode hello: %v", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return 41250
	}
	return hello.HeartbeatInterval
}

func (d *Discord) heartbeat(ctx context.Context, conn *wsConn, interval time.Duration, seq *atomic.Int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSONSafe(map[string]any{"op": 1, "d": seq.Load()}); err != nil {
				return
			}
		}
	}
}

// discordMessage is the subset of a gateway message payload the relay needs.
type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	WebhookID string `json:"webhook_id"`
	Author    struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Avatar     string `json:"avatar"`
		Bot        bool   `json:"bot"`
	} `json:"author"`
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
	MessageReference *struct {
		MessageID string `json:"message_id"`
	} `json:"message_reference"`
}

func (d *Discord) dispatch(ctx context.Context, frame gatewayFrame) {
	switch frame.T {
	case "READY":
		var ready struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		json.Unmarshal(frame.D, &ready)
		d.botUserID = ready.User.ID
		d.ready.Store(true)
		log.Printf("[Discord] gateway ready (bot %s)", d.botUserID)

	case "MESSAGE_CREATE":
		var msg discordMessage
		if err := json.Unmarshal(frame.D, &msg); err != nil {
			return
		}
		// Skip our own copies: bot-authored and webhook-authored messages.
		if msg.Author.Bot || msg.WebhookID != "" || msg.Author.ID == d.botUserID {
			return
		}
		display := msg.Author.GlobalName
		if display == "" {
			display = msg.Author.Username
		}
		avatar := ""
		if msg.Author.Avatar != "" {
			avatar = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", msg.Author.ID, msg.Author.Avatar)
		}
		var attachments []string
		for _, a := range msg.Attachments {
			attachments = append(attachments, a.URL)
		}
		replyTo := ""
		if msg.MessageReference != nil {
			replyTo = msg.MessageReference.MessageID
		}
		d.HandleInbound(ctx, InboundEvent{
			ChannelID:   msg.ChannelID,
			MessageID:   msg.ID,
			Sender:      core.User{DisplayName: display, Username: msg.Author.Username, AvatarURL: avatar},
			Content:     msg.Content,
			ReplyToID:   replyTo,
			Attachments: attachments,
		})

	case "MESSAGE_UPDATE":
		var msg discordMessage
		if err := json.Unmarshal(frame.D, &msg); err != nil {
			return
		}
		if msg.Author.Bot || msg.WebhookID != "" || msg.Content == "" {
			return
		}
		d.HandleEdit(ctx, msg.ID, msg.Content)

	case "MESSAGE_DELETE":
		var del struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(frame.D, &del); err != nil {
			return
		}
		d.HandleDelete(ctx, del.ID)
	}
}

// SendMessage posts through the channel's webhook so the message renders
// under the original sender's name and avatar.
func (d *Discord) SendMessage(ctx context.Context, ch *core.Channel, content string, from core.User, reply *core.OriginalMessage, attachments []core.Attachment) (string, error) {
	if _, ok := ch.ID(d.PlatformName); !ok {
		return "", nil // channel not mirrored on discord
	}
	hookID, hookToken := ch.ExtraString(ExtraDiscordWebhookID), ch.ExtraString(ExtraDiscordWebhookToken)
	if hookID == "" || hookToken == "" {
		return "", fmt.Errorf("discord: channel %s has no webhook configured", ch.Name)
	}

	var created struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"content":    core.ReplyPreamble(reply) + content,
		"username":   from.FullName(),
		"avatar_url": from.Avatar(),
	}
	path := fmt.Sprintf("/webhooks/%s/%s?wait=true", hookID, hookToken)
	if err := d.rest(ctx, http.MethodPost, path, body, &created); err != nil {
		return "", err
	}

	for _, att := range attachments {
		follow := map[string]any{
			"content":    att.FileURL,
			"username":   from.FullName(),
			"avatar_url": from.Avatar(),
		}
		if err := d.rest(ctx, http.MethodPost, path, follow, nil); err != nil {
			log.Printf("[Discord] attachment relay failed in %s: %v", ch.Name, err)
		}
	}
	return created.ID, nil
}

// EditMessage rewrites a webhook-sent message. No-op when discord never
// produced an id for the message.
func (d *Discord) EditMessage(ctx context.Context, ch *core.Channel, msg *core.Message, newContent string) error {
	messageID, ok := msg.ID(d.PlatformName)
	if !ok {
		return nil
	}
	hookID, hookToken := ch.ExtraString(ExtraDiscordWebhookID), ch.ExtraString(ExtraDiscordWebhookToken)
	if hookID == "" || hookToken == "" {
		return fmt.Errorf("discord: channel %s has no webhook configured", ch.Name)
	}
	path := fmt.Sprintf("/webhooks/%s/%s/messages/%s", hookID, hookToken, messageID)
	return d.rest(ctx, http.MethodPatch, path, map[string]any{"content": newContent}, nil)
}

// DeleteMessage removes a webhook-sent message. Same no-op rule.
func (d *Discord) DeleteMessage(ctx context.Context, ch *core.Channel, msg *core.Message) error {
	messageID, ok := msg.ID(d.PlatformName)
	if !ok {
		return nil
	}
	hookID, hookToken := ch.ExtraString(ExtraDiscordWebhookID), ch.ExtraString(ExtraDiscordWebhookToken)
	if hookID == "" || hookToken == "" {
		return fmt.Errorf("discord: channel %s has no webhook configured", ch.Name)
	}
	path := fmt.Sprintf("/webhooks/%s/%s/messages/%s", hookID, hookToken, messageID)
	return d.rest(ctx, http.MethodDelete, path, nil, nil)
}

// GetMessage fetches the current remote state through the bot REST API.
func (d *Discord) GetMessage(ctx context.Context, ch *core.Channel, msg *core.Message) (*core.OriginalMessage, error) {
	channelID, ok := ch.ID(d.PlatformName)
	if !ok {
		return nil, nil
	}
	messageID, ok := msg.ID(d.PlatformName)
	if !ok {
		return nil, nil
	}

	var remote discordMessage
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := d.rest(ctx, http.MethodGet, path, nil, &remote); err != nil {
		return nil, err
	}
	if remote.ID == "" {
		return nil, nil
	}
	display := remote.Author.GlobalName
	if display == "" {
		display = remote.Author.Username
	}
	return &core.OriginalMessage{
		Content:  remote.Content,
		ID:       remote.ID,
		Platform: d.PlatformName,
		User:     core.User{DisplayName: display, Username: remote.Author.Username},
		Channel:  ch,
	}, nil
}

// rest performs one Discord REST call, decoding the response into out when
// out is non-nil.
func (d *Discord) rest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.apiBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("discord %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
