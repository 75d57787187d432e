// Package app wires the registry, scheduler, propagation engine, and
// platform adapters together and owns the process lifecycle: startup with
// readiness gating, shutdown with bounded teardown.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kobosh/crosschat-go/internal/cache"
	"github.com/kobosh/crosschat-go/internal/config"
	"github.com/kobosh/crosschat-go/internal/core"
	"github.com/kobosh/crosschat-go/internal/platforms"
	"github.com/kobosh/crosschat-go/internal/sched"
)

// healthPollInterval is the readiness gate's probe interval.
const healthPollInterval = time.Second

// App is the assembled relay process.
type App struct {
	cfg       config.Config
	registry  *core.Registry
	scheduler *sched.Scheduler
	relay     *core.Relay
}

// New builds an App from configuration and channel topology: platforms are
// registered in a fixed order (telegram, discord, slack, googlechat — only
// those configured), channels are created from their specs.
func New(cfg config.Config, specs []config.ChannelSpec) *App {
	registry := core.NewRegistry()
	scheduler := sched.New(cfg.Relay.QueueSize)
	relay := core.NewRelay(registry, scheduler)

	a := &App{
		cfg:       cfg,
		registry:  registry,
		scheduler: scheduler,
		relay:     relay,
	}

	base := platforms.Base{
		Registry:      registry,
		Relay:         relay,
		DefaultAvatar: cfg.Relay.DefaultAvatarURL,
	}
	if cfg.Platform.Telegram != nil {
		registry.RegisterPlatform(platforms.NewTelegram(cfg.Platform.Telegram.Token, base))
	}
	if cfg.Platform.Discord != nil {
		registry.RegisterPlatform(platforms.NewDiscord(cfg.Platform.Discord.Token, base))
	}
	if cfg.Platform.Slack != nil {
		registry.RegisterPlatform(platforms.NewSlack(cfg.Platform.Slack.BotToken, cfg.Platform.Slack.AppToken, base))
	}
	if cfg.Platform.GoogleChat != nil && cfg.Platform.GoogleChat.Enabled {
		registry.RegisterPlatform(platforms.NewGoogleChat(base))
	}

	for _, spec := range specs {
		ch := core.NewChannel(spec.Name)
		for platform, id := range spec.IDs {
			ch.SetID(platform, id)
		}
		for key, value := range spec.Extra {
			ch.SetExtra(key, value)
		}
		registry.AddChannel(ch)
	}

	return a
}

// Registry exposes the identity registry.
func (a *App) Registry() *core.Registry { return a.registry }

// Relay exposes the propagation engine.
func (a *App) Relay() *core.Relay { return a.relay }

// Startup starts the scheduler, connects every platform in registration
// order, then readiness-gates: each platform's health check is polled at a
// fixed interval until true before the next platform is polled. A platform
// that stays unhealthy past the configured timeout fails startup by name.
func (a *App) Startup(ctx context.Context) error {
	if a.cfg.Redis.URL != "" {
		cache.Init(cache.Config{
			URL:      a.cfg.Redis.URL,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
	}

	a.scheduler.Start()

	for _, name := range a.registry.PlatformNames() {
		p, _ := a.registry.Platform(name)
		platform := p
		if _, err := a.scheduler.Submit(ctx, name+"/connect", func(ctx context.Context) (any, error) {
			return nil, platform.Connect(ctx)
		}); err != nil {
			return fmt.Errorf("connect %s: %w", name, err)
		}
		log.Printf("[App] %s connected", name)
	}

	for _, name := range a.registry.PlatformNames() {
		p, _ := a.registry.Platform(name)
		if err := a.waitHealthy(ctx, name, p); err != nil {
			return err
		}
		log.Printf("[App] %s healthy", name)
	}

	log.Printf("[App] ready, relaying across %v", a.registry.PlatformNames())
	return nil
}

// waitHealthy blocks until the platform reports healthy, the readiness
// timeout elapses, or ctx is cancelled.
func (a *App) waitHealthy(ctx context.Context, name string, p core.Platform) error {
	if p.HealthCheck() {
		return nil
	}
	timeout := time.Duration(a.cfg.Relay.ReadinessTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.HealthCheck() {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("platform %s not healthy after %s", name, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown disconnects every platform in registration order, each bounded by
// the teardown timeout, then stops the scheduler and closes the cache.
func (a *App) Shutdown(ctx context.Context) error {
	timeout := time.Duration(a.cfg.Relay.TeardownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var firstErr error
	for _, name := range a.registry.PlatformNames() {
		p, _ := a.registry.Platform(name)
		platform := p
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := a.scheduler.Submit(opCtx, name+"/disconnect", func(ctx context.Context) (any, error) {
			return nil, platform.Disconnect(ctx)
		})
		cancel()
		if err != nil {
			log.Printf("[App] disconnect %s: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("disconnect %s: %w", name, err)
			}
		}
	}

	a.scheduler.Stop()
	cache.Close()
	return firstErr
}
