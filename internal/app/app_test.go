package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobosh/crosschat-go/internal/config"
	"github.com/kobosh/crosschat-go/internal/core"
)

// stubPlatform tracks lifecycle calls and becomes healthy after a delay.
type stubPlatform struct {
	name        string
	healthDelay time.Duration

	connectedAt   time.Time
	healthy       atomic.Bool
	disconnects   atomic.Int32
	disconnectLog *[]string
	logMu         *sync.Mutex
}

func (p *stubPlatform) Name() string { return p.name }

func (p *stubPlatform) Connect(ctx context.Context) error {
	p.connectedAt = time.Now()
	if p.healthDelay == 0 {
		p.healthy.Store(true)
	} else {
		delay := p.healthDelay
		go func() {
			time.Sleep(delay)
			p.healthy.Store(true)
		}()
	}
	return nil
}

func (p *stubPlatform) Disconnect(ctx context.Context) error {
	p.disconnects.Add(1)
	if p.disconnectLog != nil {
		p.logMu.Lock()
		*p.disconnectLog = append(*p.disconnectLog, p.name)
		p.logMu.Unlock()
	}
	return nil
}

func (p *stubPlatform) HealthCheck() bool { return p.healthy.Load() }

func (p *stubPlatform) SendMessage(ctx context.Context, ch *core.Channel, content string, from core.User, reply *core.OriginalMessage, attachments []core.Attachment) (string, error) {
	return "", nil
}
func (p *stubPlatform) EditMessage(ctx context.Context, ch *core.Channel, msg *core.Message, newContent string) error {
	return nil
}
func (p *stubPlatform) DeleteMessage(ctx context.Context, ch *core.Channel, msg *core.Message) error {
	return nil
}
func (p *stubPlatform) GetMessage(ctx context.Context, ch *core.Channel, msg *core.Message) (*core.OriginalMessage, error) {
	return nil, nil
}

func testConfig(readinessSec int) config.Config {
	cfg := config.DefaultConfig()
	cfg.Relay.ReadinessTimeoutSec = readinessSec
	cfg.Relay.TeardownTimeoutSec = 2
	return cfg
}

func TestNew_BuildsChannelsFromSpecs(t *testing.T) {
	specs := []config.ChannelSpec{
		{
			Name:  "general",
			IDs:   map[string]string{"discord": "100", "telegram": "-300"},
			Extra: map[string]string{"discord_webhook_id": "42"},
		},
	}
	a := New(testConfig(5), specs)

	require.Len(t, a.Registry().Channels(), 1)
	ch := a.Registry().FindChannel("100", "discord")
	require.NotNil(t, ch)
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, "42", ch.ExtraString("discord_webhook_id"))
	assert.Same(t, ch, a.Registry().FindChannel("-300", "telegram"))
}

func TestStartup_BlocksUntilAllHealthy(t *testing.T) {
	a := New(testConfig(10), nil)
	fast := &stubPlatform{name: "fast"}
	slow := &stubPlatform{name: "slow", healthDelay: 1200 * time.Millisecond}
	a.Registry().RegisterPlatform(fast)
	a.Registry().RegisterPlatform(slow)

	start := time.Now()
	err := a.Startup(context.Background())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.True(t, fast.HealthCheck())
	assert.True(t, slow.HealthCheck())
	assert.GreaterOrEqual(t, time.Since(start), slow.healthDelay,
		"startup must not return before every platform is healthy")
}

func TestStartup_ReadinessTimeoutNamesPlatform(t *testing.T) {
	a := New(testConfig(1), nil)
	healthy := &stubPlatform{name: "healthy"}
	stuck := &stubPlatform{name: "stuck", healthDelay: time.Hour}
	a.Registry().RegisterPlatform(healthy)
	a.Registry().RegisterPlatform(stuck)

	err := a.Startup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")
	a.Shutdown(context.Background())
}

func TestStartup_ConnectsInRegistrationOrder(t *testing.T) {
	a := New(testConfig(5), nil)
	first := &stubPlatform{name: "first"}
	second := &stubPlatform{name: "second"}
	a.Registry().RegisterPlatform(first)
	a.Registry().RegisterPlatform(second)

	require.NoError(t, a.Startup(context.Background()))
	defer a.Shutdown(context.Background())

	assert.False(t, first.connectedAt.After(second.connectedAt),
		"platforms must connect in registration order")
}

func TestShutdown_DisconnectsInRegistrationOrder(t *testing.T) {
	a := New(testConfig(5), nil)
	var order []string
	var mu sync.Mutex
	first := &stubPlatform{name: "first", disconnectLog: &order, logMu: &mu}
	second := &stubPlatform{name: "second", disconnectLog: &order, logMu: &mu}
	a.Registry().RegisterPlatform(first)
	a.Registry().RegisterPlatform(second)

	require.NoError(t, a.Startup(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, int32(1), first.disconnects.Load())
	assert.Equal(t, int32(1), second.disconnects.Load())
}
