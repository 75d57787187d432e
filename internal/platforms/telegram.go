package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kobosh/crosschat-go/internal/cache"
	"github.com/kobosh/crosschat-go/internal/core"
)

// Telegram implements the Telegram Bot API adapter using long polling.
// Telegram offers no sender impersonation, so relayed messages are prefixed
// with the sender's full name instead.
type Telegram struct {
	Base
	Token string

	client   *http.Client
	apiBase  string // https://api.telegram.org, injectable for tests
	botID    int64
	ready    atomic.Bool
	cancelFn context.CancelFunc
}

// NewTelegram creates a Telegram adapter.
func NewTelegram(token string, base Base) *Telegram {
	base.PlatformName = "telegram"
	return &Telegram{
		Base:    base,
		Token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
		apiBase: "https://api.telegram.org",
	}
}

func (t *Telegram) Name() string      { return t.PlatformName }
func (t *Telegram) HealthCheck() bool { return t.ready.Load() }

// Connect validates the token via getMe and starts the long-polling loop in
// its own goroutine.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.Token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}

	info, err := t.apiCall(ctx, "getMe", nil)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if result, ok := info["result"].(map[string]any); ok {
		if id, ok := result["id"].(float64); ok {
			t.botID = int64(id)
		}
		if username, ok := result["username"].(string); ok {
			log.Printf("[Telegram] bot @%s connected", username)
		}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	t.cancelFn = cancel
	go t.poll(pollCtx)
	t.ready.Store(true)
	return nil
}

// Disconnect stops the polling loop. Idempotent.
func (t *Telegram) Disconnect(ctx context.Context) error {
	t.ready.Store(false)
	if t.cancelFn != nil {
		t.cancelFn()
		t.cancelFn = nil
	}
	return nil
}

// SendMessage posts to the channel's Telegram chat, prefixed with the sender.
func (t *Telegram) SendMessage(ctx context.Context, ch *core.Channel, content string, from core.User, reply *core.OriginalMessage, attachments []core.Attachment) (string, error) {
	chatID, ok := ch.ID(t.PlatformName)
	if !ok {
		return "", nil // channel not mirrored on telegram
	}

	text := core.ReplyPreamble(reply) + from.FullName() + ":\n" + content
	resp, err := t.apiCall(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return "", err
	}
	id := resultMessageID(resp)
	if id == "" {
		return "", fmt.Errorf("telegram sendMessage: no message_id in response")
	}

	for _, att := range attachments {
		if _, err := t.apiCall(ctx, "sendMessage", map[string]any{
			"chat_id": chatID,
			"text":    att.FileURL,
		}); err != nil {
			log.Printf("[Telegram] attachment relay failed in %s: %v", ch.Name, err)
		}
	}
	return id, nil
}

// EditMessage rewrites a previously relayed message. No-op when the message
// was never mirrored to telegram.
func (t *Telegram) EditMessage(ctx context.Context, ch *core.Channel, msg *core.Message, newContent string) error {
	chatID, ok := ch.ID(t.PlatformName)
	if !ok {
		return nil
	}
	messageID, ok := msg.ID(t.PlatformName)
	if !ok {
		return nil
	}
	mid, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram edit: bad message id %q: %w", messageID, err)
	}
	_, err = t.apiCall(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": mid,
		"text":       msg.User.FullName() + ":\n" + newContent,
	})
	return err
}

// DeleteMessage removes a previously relayed message. Same no-op rule.
func (t *Telegram) DeleteMessage(ctx context.Context, ch *core.Channel, msg *core.Message) error {
	chatID, ok := ch.ID(t.PlatformName)
	if !ok {
		return nil
	}
	messageID, ok := msg.ID(t.PlatformName)
	if !ok {
		return nil
	}
	mid, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram delete: bad message id %q: %w", messageID, err)
	}
	_, err = t.apiCall(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": mid,
	})
	return err
}

// GetMessage is unsupported: the Bot API has no message fetch endpoint.
func (t *Telegram) GetMessage(ctx context.Context, ch *core.Channel, msg *core.Message) (*core.OriginalMessage, error) {
	return nil, nil
}

// poll is the long-polling receive loop.
func (t *Telegram) poll(ctx context.Context) {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			t.ready.Store(false)
			return
		default:
		}

		updates, err := t.apiCall(ctx, "getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         30,
			"allowed_updates": []string{"message", "edited_message"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Telegram] getUpdates error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		results, _ := updates["result"].([]any)
		for _, u := range results {
			update, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if uid, ok := update["update_id"].(float64); ok {
				offset = int(uid) + 1
			}
			t.processUpdate(ctx, update)
		}
	}
}

func (t *Telegram) processUpdate(ctx context.Context, update map[string]any) {
	if edited, ok := update["edited_message"].(map[string]any); ok {
		text, _ := edited["text"].(string)
		if mid := mapMessageID(edited); mid != "" && text != "" {
			t.HandleEdit(ctx, mid, text)
		}
		return
	}

	msg, ok := update["message"].(map[string]any)
	if !ok {
		return
	}
	from, _ := msg["from"].(map[string]any)
	chat, _ := msg["chat"].(map[string]any)
	if from == nil || chat == nil {
		return
	}
	if id, ok := from["id"].(float64); ok && int64(id) == t.botID {
		return // our own outbound copy
	}

	userID := trimFloat(from["id"])
	display, _ := from["first_name"].(string)
	if last, ok := from["last_name"].(string); ok && last != "" {
		display += " " + last
	}
	username, _ := from["username"].(string)
	if username == "" {
		username = userID
	}

	text, _ := msg["text"].(string)
	caption, _ := msg["caption"].(string)
	if text == "" && caption != "" {
		text = caption
	}

	replyTo := ""
	if rt, ok := msg["reply_to_message"].(map[string]any); ok {
		replyTo = mapMessageID(rt)
	}

	t.HandleInbound(ctx, InboundEvent{
		ChannelID:   trimFloat(chat["id"]),
		MessageID:   mapMessageID(msg),
		Sender:      core.User{DisplayName: display, Username: username, AvatarURL: t.avatarURL(ctx, userID)},
		Content:     text,
		ReplyToID:   replyTo,
		Attachments: t.extractAttachments(ctx, msg),
	})
}

// avatarURL resolves a user's profile photo, consulting the cache first:
// photo lookups cost two API round trips per user.
func (t *Telegram) avatarURL(ctx context.Context, userID string) string {
	key := cache.AvatarKey(t.PlatformName, userID)
	if url := cache.Get(ctx, key); url != "" {
		return url
	}

	photos, err := t.apiCall(ctx, "getUserProfilePhotos", map[string]any{
		"user_id": userID,
		"limit":   1,
	})
	if err != nil {
		return ""
	}
	result, _ := photos["result"].(map[string]any)
	sets, _ := result["photos"].([]any)
	if len(sets) == 0 {
		return ""
	}
	sizes, _ := sets[0].([]any)
	if len(sizes) == 0 {
		return ""
	}
	largest, _ := sizes[len(sizes)-1].(map[string]any)
	fileID, _ := largest["file_id"].(string)
	url := t.fileURL(ctx, fileID)
	if url != "" {
		cache.Set(ctx, key, url, cache.DefaultTTL)
	}
	return url
}

// extractAttachments turns photos and documents into downloadable URLs.
func (t *Telegram) extractAttachments(ctx context.Context, msg map[string]any) []string {
	var urls []string
	if doc, ok := msg["document"].(map[string]any); ok {
		if fileID, ok := doc["file_id"].(string); ok {
			if url := t.fileURL(ctx, fileID); url != "" {
				urls = append(urls, url)
			}
		}
	}
	if sizes, ok := msg["photo"].([]any); ok && len(sizes) > 0 {
		if largest, ok := sizes[len(sizes)-1].(map[string]any); ok {
			if fileID, ok := largest["file_id"].(string); ok {
				if url := t.fileURL(ctx, fileID); url != "" {
					urls = append(urls, url)
				}
			}
		}
	}
	return urls
}

// fileURL resolves a file_id to its download URL via getFile.
func (t *Telegram) fileURL(ctx context.Context, fileID string) string {
	if fileID == "" {
		return ""
	}
	resp, err := t.apiCall(ctx, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return ""
	}
	result, _ := resp["result"].(map[string]any)
	path, _ := result["file_path"].(string)
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s/file/bot%s/%s", t.apiBase, t.Token, path)
}

func (t *Telegram) apiCall(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.Token, method)
	body, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if ok, _ := result["ok"].(bool); !ok {
		desc, _ := result["description"].(string)
		return nil, fmt.Errorf("telegram %s: %s", method, desc)
	}
	return result, nil
}

// resultMessageID extracts result.message_id from an API response.
func resultMessageID(resp map[string]any) string {
	result, _ := resp["result"].(map[string]any)
	return mapMessageID(result)
}

func mapMessageID(msg map[string]any) string {
	if msg == nil {
		return ""
	}
	return trimFloat(msg["message_id"])
}

// trimFloat renders a JSON number (or string) id without a fraction part.
func trimFloat(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case string:
		return n
	default:
		return ""
	}
}
