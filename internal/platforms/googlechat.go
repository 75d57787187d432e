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

	"github.com/kobosh/crosschat-go/internal/core"
)

// Channel metadata key holding the Google Chat incoming-webhook URL.
const ExtraGoogleChatWebhook = "gchat_webhook"

// GoogleChat is a send-only mirror target backed by incoming webhooks.
// The webhook API cannot address previously posted messages, so edit and
// delete are no-ops; the returned message name is still recorded so the id
// map stays complete.
type GoogleChat struct {
	Base

	client *http.Client
	ready  atomic.Bool
}

// NewGoogleChat creates a Google Chat webhook adapter.
func NewGoogleChat(base Base) *GoogleChat {
	base.PlatformName = "googlechat"
	return &GoogleChat{
		Base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GoogleChat) Name() string      { return g.PlatformName }
func (g *GoogleChat) HealthCheck() bool { return g.ready.Load() }

// Connect has no session to establish; webhooks are stateless.
func (g *GoogleChat) Connect(ctx context.Context) error {
	g.ready.Store(true)
	return nil
}

// Disconnect is a no-op. Idempotent.
func (g *GoogleChat) Disconnect(ctx context.Context) error {
	g.ready.Store(false)
	return nil
}

// SendMessage posts to the channel's incoming webhook.
func (g *GoogleChat) SendMessage(ctx context.Context, ch *core.Channel, content string, from core.User, reply *core.OriginalMessage, attachments []core.Attachment) (string, error) {
	if _, ok := ch.ID(g.PlatformName); !ok {
		return "", nil // channel not mirrored on google chat
	}
	webhook := ch.ExtraString(ExtraGoogleChatWebhook)
	if webhook == "" {
		return "", fmt.Errorf("googlechat: channel %s has no webhook configured", ch.Name)
	}

	text := core.ReplyPreamble(reply) + from.FullName() + ":\n" + content
	id, err := g.post(ctx, webhook, text)
	if err != nil {
		return "", err
	}
	for _, att := range attachments {
		if _, err := g.post(ctx, webhook, att.FileURL); err != nil {
			log.Printf("[GoogleChat] attachment relay failed in %s: %v", ch.Name, err)
		}
	}
	return id, nil
}

// EditMessage is a no-op: incoming webhooks cannot modify posted messages.
func (g *GoogleChat) EditMessage(ctx context.Context, ch *core.Channel, msg *core.Message, newContent string) error {
	return nil
}

// DeleteMessage is a no-op for the same reason.
func (g *GoogleChat) DeleteMessage(ctx context.Context, ch *core.Channel, msg *core.Message) error {
	return nil
}

// GetMessage is unsupported over webhooks.
func (g *GoogleChat) GetMessage(ctx context.Context, ch *core.Channel, msg *core.Message) (*core.OriginalMessage, error) {
	return nil, nil
}

func (g *GoogleChat) post(ctx context.Context, webhook, text string) (string, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("googlechat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("googlechat webhook: status %d", resp.StatusCode)
	}
	var created struct {
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	return created.Name, nil
}
