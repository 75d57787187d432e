package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kobosh/crosschat-go/internal/cache"
	"github.com/kobosh/crosschat-go/internal/core"
)

// Slack implements the Slack adapter: Web API for outbound (chat:write.customize
// lets sends carry the original sender's name and icon), Socket Mode over
// WebSocket for inbound events.
type Slack struct {
	Base
	BotToken string
	AppToken string

	client    *http.Client
	apiBase   string // https://slack.com/api, injectable for tests
	botUserID string
	ready     atomic.Bool
	cancelFn  context.CancelFunc
}

// NewSlack creates a Slack adapter.
func NewSlack(botToken, appToken string, base Base) *Slack {
	base.PlatformName = "slack"
	return &Slack{
		Base:     base,
		BotToken: botToken,
		AppToken: appToken,
		client:   &http.Client{Timeout: 30 * time.Second},
		apiBase:  "https://slack.com/api",
	}
}

func (s *Slack) Name() string      { return s.PlatformName }
func (s *Slack) HealthCheck() bool { return s.ready.Load() }

// Connect validates the bot token and starts the Socket Mode session in its
// own goroutine. Readiness is reported once the socket says hello.
func (s *Slack) Connect(ctx context.Context) error {
	if s.BotToken == "" || s.AppToken == "" {
		return fmt.Errorf("slack bot/app token not configured")
	}

	auth, err := s.webAPI(ctx, "auth.test", nil)
	if err != nil {
		return fmt.Errorf("slack auth.test: %w", err)
	}
	if uid, ok := auth["user_id"].(string); ok {
		s.botUserID = uid
		log.Printf("[Slack] bot connected as %s", uid)
	}

	sockCtx, cancel := context.WithCancel(context.Background())
	s.cancelFn = cancel
	go s.runSocket(sockCtx)
	return nil
}

// Disconnect stops the Socket Mode session. Idempotent.
func (s *Slack) Disconnect(ctx context.Context) error {
	s.ready.Store(false)
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	return nil
}

// runSocket reconnects Socket Mode with a flat backoff until cancelled.
func (s *Slack) runSocket(ctx context.Context) {
	for {
		if err := s.socketSession(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Slack] socket session ended: %v", err)
		}
		s.ready.Store(false)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

type socketEnvelope struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload"`
}

// socketSession runs one apps.connections.open → dial → read cycle.
func (s *Slack) socketSession(ctx context.Context) error {
	open, err := s.appAPI(ctx, "apps.connections.open")
	if err != nil {
		return fmt.Errorf("apps.connections.open: %w", err)
	}
	wsURL, _ := open["url"].(string)
	if wsURL == "" {
		return fmt.Errorf("apps.connections.open: no url in response")
	}

	raw, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket mode: %w", err)
	}
	conn := &wsConn{Conn: raw}
	defer conn.CloseSafe()

	for {
		var env socketEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("socket read: %w", err)
		}

		switch env.Type {
		case "hello":
			s.ready.Store(true)
		case "disconnect":
			return fmt.Errorf("socket mode disconnect requested")
		case "events_api":
			// Ack before processing; Slack retries unacked envelopes.
			conn.WriteJSONSafe(map[string]string{"envelope_id": env.EnvelopeID})
			s.processPayload(ctx, env.Payload)
		}
	}
}

func (s *Slack) processPayload(ctx context.Context, payload json.RawMessage) {
	var outer struct {
		Event map[string]any `json:"event"`
	}
	if err := json.Unmarshal(payload, &outer); err != nil || outer.Event == nil {
		return
	}
	event := outer.Event
	if t, _ := event["type"].(string); t != "message" {
		return
	}

	subtype, _ := event["subtype"].(string)
	channel, _ := event["channel"].(string)
	switch subtype {
	case "":
		s.processMessage(ctx, event, channel)
	case "message_changed":
		inner, _ := event["message"].(map[string]any)
		if inner == nil {
			return
		}
		if bot, _ := inner["bot_id"].(string); bot != "" {
			return
		}
		ts, _ := inner["ts"].(string)
		text, _ := inner["text"].(string)
		if ts != "" && text != "" {
			s.HandleEdit(ctx, ts, text)
		}
	case "message_deleted":
		if ts, _ := event["deleted_ts"].(string); ts != "" {
			s.HandleDelete(ctx, ts)
		}
	}
}

func (s *Slack) processMessage(ctx context.Context, event map[string]any, channel string) {
	userID, _ := event["user"].(string)
	text, _ := event["text"].(string)
	ts, _ := event["ts"].(string)
	if userID == "" || ts == "" {
		return
	}
	if userID == s.botUserID {
		return
	}
	if bot, _ := event["bot_id"].(string); bot != "" {
		return // our impersonated sends come back as bot messages
	}

	replyTo := ""
	if threadTS, ok := event["thread_ts"].(string); ok && threadTS != ts {
		replyTo = threadTS
	}

	var attachments []string
	if files, ok := event["files"].([]any); ok {
		for _, f := range files {
			if fm, ok := f.(map[string]any); ok {
				if url, _ := fm["url_private"].(string); url != "" {
					attachments = append(attachments, url)
				}
			}
		}
	}

	display, username, avatar := s.userProfile(ctx, userID)
	s.HandleInbound(ctx, InboundEvent{
		ChannelID:   channel,
		MessageID:   ts,
		Sender:      core.User{DisplayName: display, Username: username, AvatarURL: avatar},
		Content:     text,
		ReplyToID:   replyTo,
		Attachments: attachments,
	})
}

// userProfile resolves a Slack user id to display name, handle, and avatar,
// consulting the cache first. Falls back to the raw id when users.info fails.
func (s *Slack) userProfile(ctx context.Context, userID string) (display, username, avatar string) {
	profileKey := cache.ProfileKey(s.PlatformName, userID)
	avatarKey := cache.AvatarKey(s.PlatformName, userID)
	if cached := cache.Get(ctx, profileKey); cached != "" {
		if parts := strings.SplitN(cached, "|", 2); len(parts) == 2 {
			return parts[0], parts[1], cache.Get(ctx, avatarKey)
		}
	}

	info, err := s.webAPI(ctx, "users.info", map[string]any{"user": userID})
	if err != nil {
		return userID, userID, ""
	}
	user, _ := info["user"].(map[string]any)
	if user == nil {
		return userID, userID, ""
	}
	username, _ = user["name"].(string)
	profile, _ := user["profile"].(map[string]any)
	if profile != nil {
		display, _ = profile["display_name"].(string)
		if display == "" {
			display, _ = profile["real_name"].(string)
		}
		avatar, _ = profile["image_192"].(string)
	}
	if display == "" {
		display = username
	}
	if username == "" {
		username = userID
	}

	cache.Set(ctx, profileKey, display+"|"+username, cache.DefaultTTL)
	if avatar != "" {
		cache.Set(ctx, avatarKey, avatar, cache.DefaultTTL)
	}
	return display, username, avatar
}

// SendMessage posts to the channel, rendered under the sender's name/icon.
func (s *Slack) SendMessage(ctx context.Context, ch *core.Channel, content string, from core.User, reply *core.OriginalMessage, attachments []core.Attachment) (string, error) {
	channelID, ok := ch.ID(s.PlatformName)
	if !ok {
		return "", nil // channel not mirrored on slack
	}

	resp, err := s.webAPI(ctx, "chat.postMessage", map[string]any{
		"channel":  channelID,
		"text":     core.ReplyPreamble(reply) + content,
		"username": from.FullName(),
		"icon_url": from.Avatar(),
	})
	if err != nil {
		return "", err
	}
	ts, _ := resp["ts"].(string)
	if ts == "" {
		return "", fmt.Errorf("slack chat.postMessage: no ts in response")
	}

	for _, att := range attachments {
		if _, err := s.webAPI(ctx, "chat.postMessage", map[string]any{
			"channel":  channelID,
			"text":     att.FileURL,
			"username": from.FullName(),
			"icon_url": from.Avatar(),
		}); err != nil {
			log.Printf("[Slack] attachment relay failed in %s: %v", ch.Name, err)
		}
	}
	return ts, nil
}

// EditMessage rewrites a relayed message via chat.update. No-op when slack
// never produced an id for the message.
func (s *Slack) EditMessage(ctx context.Context, ch *core.Channel, msg *core.Message, newContent string) error {
	channelID, ok := ch.ID(s.PlatformName)
	if !ok {
		return nil
	}
	ts, ok := msg.ID(s.PlatformName)
	if !ok {
		return nil
	}
	_, err := s.webAPI(ctx, "chat.update", map[string]any{
		"channel": channelID,
		"ts":      ts,
		"text":    newContent,
	})
	return err
}

// DeleteMessage removes a relayed message via chat.delete. Same no-op rule.
func (s *Slack) DeleteMessage(ctx context.Context, ch *core.Channel, msg *core.Message) error {
	channelID, ok := ch.ID(s.PlatformName)
	if !ok {
		return nil
	}
	ts, ok := msg.ID(s.PlatformName)
	if !ok {
		return nil
	}
	_, err := s.webAPI(ctx, "chat.delete", map[string]any{
		"channel": channelID,
		"ts":      ts,
	})
	return err
}

// GetMessage fetches the message's current remote state from history.
func (s *Slack) GetMessage(ctx context.Context, ch *core.Channel, msg *core.Message) (*core.OriginalMessage, error) {
	channelID, ok := ch.ID(s.PlatformName)
	if !ok {
		return nil, nil
	}
	ts, ok := msg.ID(s.PlatformName)
	if !ok {
		return nil, nil
	}

	resp, err := s.webAPI(ctx, "conversations.history", map[string]any{
		"channel":   channelID,
		"latest":    ts,
		"inclusive": true,
		"limit":     1,
	})
	if err != nil {
		return nil, err
	}
	messages, _ := resp["messages"].([]any)
	if len(messages) == 0 {
		return nil, nil
	}
	remote, _ := messages[0].(map[string]any)
	remoteTS, _ := remote["ts"].(string)
	if remoteTS != ts {
		return nil, nil
	}
	content, _ := remote["text"].(string)
	return &core.OriginalMessage{
		Content:  content,
		ID:       remoteTS,
		Platform: s.PlatformName,
		User:     msg.User,
		Channel:  ch,
	}, nil
}

// webAPI calls a Web API method with the bot token.
func (s *Slack) webAPI(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	return s.call(ctx, method, s.BotToken, params)
}

// appAPI calls a method that requires the app-level token (Socket Mode).
func (s *Slack) appAPI(ctx context.Context, method string) (map[string]any, error) {
	return s.call(ctx, method, s.AppToken, nil)
}

func (s *Slack) call(ctx context.Context, method, token string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/"+method, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("slack %s: decode: %w", method, err)
	}
	if ok, _ := result["ok"].(bool); !ok {
		errStr, _ := result["error"].(string)
		return nil, fmt.Errorf("slack %s: %s", method, errStr)
	}
	return result, nil
}
