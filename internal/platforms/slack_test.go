package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobosh/crosschat-go/internal/core"
	"github.com/kobosh/crosschat-go/internal/sched"
)

// slackAPIStub fakes slack.com/api, recording every method call.
type slackAPIStub struct {
	mu    sync.Mutex
	calls []slackCall

	server *httptest.Server
}

type slackCall struct {
	method string
	params map[string]any
}

func newSlackAPIStub(t *testing.T) *slackAPIStub {
	t.Helper()
	stub := &slackAPIStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		method := r.URL.Path[1:]
		stub.mu.Lock()
		stub.calls = append(stub.calls, slackCall{method: method, params: params})
		stub.mu.Unlock()

		switch method {
		case "chat.postMessage":
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1724900000.000100"})
		case "users.info":
			json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"user": map[string]any{
					"name": "alice123",
					"profile": map[string]any{
						"display_name": "Alice",
						"image_192":    "https://avatars.example/alice.png",
					},
				},
			})
		case "conversations.history":
			json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"messages": []any{
					map[string]any{"ts": "1724900000.000100", "text": "remote copy"},
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *slackAPIStub) callsFor(method string) []slackCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []slackCall
	for _, c := range s.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// slackFixture wires a Slack adapter against the stub with a live relay so
// inbound events can be observed on a mirror platform.
func slackFixture(t *testing.T) (*Slack, *slackAPIStub, *mirrorPlatform, *core.Registry) {
	t.Helper()
	stub := newSlackAPIStub(t)
	registry := core.NewRegistry()
	scheduler := sched.New(16)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)
	relay := core.NewRelay(registry, scheduler)

	sl := NewSlack("xoxb-test", "xapp-test", Base{Registry: registry, Relay: relay})
	sl.apiBase = stub.server.URL
	mirror := &mirrorPlatform{name: "mirror"}
	registry.RegisterPlatform(sl)
	registry.RegisterPlatform(mirror)

	ch := core.NewChannel("general")
	ch.SetID("slack", "C123")
	ch.SetID("mirror", "chan-2")
	registry.AddChannel(ch)
	return sl, stub, mirror, registry
}

func slackEventPayload(event map[string]any) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"event": event})
	return raw
}

func TestSlack_SendMessageImpersonatesSender(t *testing.T) {
	sl, stub, _, _ := slackFixture(t)
	ch := core.NewChannel("general")
	ch.SetID("slack", "C123")

	from := core.User{DisplayName: "Alice", Username: "alice123", AvatarURL: "https://avatars.example/alice.png"}
	ts, err := sl.SendMessage(context.Background(), ch, "hello", from, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "1724900000.000100", ts)

	calls := stub.callsFor("chat.postMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "C123", calls[0].params["channel"])
	assert.Equal(t, "hello", calls[0].params["text"])
	assert.Equal(t, "Alice(@alice123)", calls[0].params["username"])
	assert.Equal(t, "https://avatars.example/alice.png", calls[0].params["icon_url"])
}

func TestSlack_SendMessageSkipsUnmappedChannel(t *testing.T) {
	sl, stub, _, _ := slackFixture(t)
	ch := core.NewChannel("telegram-only")

	ts, err := sl.SendMessage(context.Background(), ch, "hello", core.User{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ts)
	assert.Empty(t, stub.callsFor("chat.postMessage"))
}

func TestSlack_ProcessPayloadBroadcastsInbound(t *testing.T) {
	sl, _, mirror, registry := slackFixture(t)

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "message",
		"channel": "C123",
		"user":    "U777",
		"ts":      "1724900001.000200",
		"text":    "hi from slack",
	}))

	require.Len(t, mirror.sends, 1)
	assert.Equal(t, "hi from slack", mirror.sends[0].content)
	assert.Equal(t, "Alice(@alice123)", mirror.sends[0].from.FullName())

	msg := registry.FindMessage("1724900001.000200", "slack")
	require.NotNil(t, msg)
	assert.Equal(t, "mirror-1", msg.IDs()["mirror"])
}

func TestSlack_ProcessPayloadIgnoresOwnAndBotMessages(t *testing.T) {
	sl, _, mirror, _ := slackFixture(t)
	sl.botUserID = "UBOT"

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "message",
		"channel": "C123",
		"user":    "UBOT",
		"ts":      "1724900002.000300",
		"text":    "own echo",
	}))
	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "message",
		"channel": "C123",
		"user":    "U777",
		"bot_id":  "B42",
		"ts":      "1724900003.000400",
		"text":    "webhook echo",
	}))

	assert.Empty(t, mirror.sends)
}

func TestSlack_ProcessPayloadEditAndDelete(t *testing.T) {
	sl, _, mirror, registry := slackFixture(t)

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "message",
		"channel": "C123",
		"user":    "U777",
		"ts":      "1724900004.000500",
		"text":    "first draft",
	}))
	msg := registry.FindMessage("1724900004.000500", "slack")
	require.NotNil(t, msg)

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "message",
		"subtype": "message_changed",
		"channel": "C123",
		"message": map[string]any{"ts": "1724900004.000500", "text": "final draft"},
	}))
	assert.Equal(t, "final draft", msg.Content())

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":       "message",
		"subtype":    "message_deleted",
		"channel":    "C123",
		"deleted_ts": "1724900004.000500",
	}))
	// delete leaves local state registered
	assert.NotNil(t, registry.FindMessage("1724900004.000500", "slack"))
	_ = mirror
}

func TestSlack_ProcessPayloadIgnoresNonMessageEvents(t *testing.T) {
	sl, _, mirror, _ := slackFixture(t)

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "reaction_added",
		"channel": "C123",
		"user":    "U777",
	}))
	assert.Empty(t, mirror.sends)
}

func TestSlack_ThreadReplyResolvesToParent(t *testing.T) {
	sl, _, mirror, registry := slackFixture(t)

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":    "message",
		"channel": "C123",
		"user":    "U777",
		"ts":      "1724900005.000600",
		"text":    "parent",
	}))
	parent := registry.FindMessage("1724900005.000600", "slack")
	require.NotNil(t, parent)

	sl.processPayload(context.Background(), slackEventPayload(map[string]any{
		"type":      "message",
		"channel":   "C123",
		"user":      "U777",
		"ts":        "1724900006.000700",
		"thread_ts": "1724900005.000600",
		"text":      "threaded reply",
	}))

	require.Len(t, mirror.sends, 2)
	assert.Same(t, parent.Origin, mirror.sends[1].reply)
}

func TestSlack_GetMessageFetchesRemoteState(t *testing.T) {
	sl, stub, _, _ := slackFixture(t)
	ch := core.NewChannel("general")
	ch.SetID("slack", "C123")
	msg := core.NewMessage(&core.OriginalMessage{ID: "t-1", Platform: "telegram", Channel: ch})
	msg.SetID("slack", "1724900000.000100")

	remote, err := sl.GetMessage(context.Background(), ch, msg)
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.Equal(t, "remote copy", remote.Content)
	assert.Equal(t, "slack", remote.Platform)

	calls := stub.callsFor("conversations.history")
	require.Len(t, calls, 1)
	assert.Equal(t, "1724900000.000100", calls[0].params["latest"])
}

func TestSlack_EditAndDeleteUseStoredTS(t *testing.T) {
	sl, stub, _, _ := slackFixture(t)
	ch := core.NewChannel("general")
	ch.SetID("slack", "C123")
	msg := core.NewMessage(&core.OriginalMessage{ID: "t-1", Platform: "telegram", Channel: ch})
	msg.SetID("slack", "1724900000.000100")

	require.NoError(t, sl.EditMessage(context.Background(), ch, msg, "edited"))
	require.NoError(t, sl.DeleteMessage(context.Background(), ch, msg))

	edits := stub.callsFor("chat.update")
	require.Len(t, edits, 1)
	assert.Equal(t, "edited", edits[0].params["text"])
	dels := stub.callsFor("chat.delete")
	require.Len(t, dels, 1)
	assert.Equal(t, "1724900000.000100", dels[0].params["ts"])
}
