package core

import (
	"context"
	"fmt"
	"log"

	"github.com/kobosh/crosschat-go/internal/sched"
)

// Op identifies a propagation operation in aggregate results.
type Op string

const (
	OpSend   Op = "send"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// Result is the outcome of one operation on one platform. A sweep over all
// platforms returns one Result per attempted platform; partial failure is
// expected and never aborts the rest of the sweep.
type Result struct {
	Platform string
	Op       Op
	Err      error
}

// Failed returns the subset of results that carry errors.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Relay is the propagation engine: broadcast, edit, and delete as
// Message-level operations over all registered platforms. Every adapter call
// goes through the scheduler bridge so adapter work stays serialized on the
// worker goroutine.
type Relay struct {
	registry *Registry
	sched    *sched.Scheduler
}

// NewRelay creates a propagation engine over the given registry and bridge.
func NewRelay(registry *Registry, scheduler *sched.Scheduler) *Relay {
	return &Relay{registry: registry, sched: scheduler}
}

// Broadcast mirrors msg to every registered platform except its origin, in
// registration order, recording each returned native id. The origin id stays
// exactly as seeded.
func (r *Relay) Broadcast(ctx context.Context, msg *Message) []Result {
	origin := msg.Origin.Platform
	var results []Result
	for _, name := range r.registry.PlatformNames() {
		if name == origin {
			continue
		}
		p, ok := r.registry.Platform(name)
		if !ok {
			continue
		}
		platform := p
		id, err := r.submitSend(ctx, platform, msg)
		if err == nil && id != "" {
			msg.SetID(platform.Name(), id)
		}
		results = append(results, Result{Platform: name, Op: OpSend, Err: err})
	}
	logFailures("broadcast", results)
	return results
}

// Edit rewrites msg on every registered platform, including the origin (the
// origin copy never went through SendMessage, so the edit sweep is the only
// path that reaches it). The local content is replaced once, after all
// dispatches, so concurrent readers see the old content until the sweep
// completes.
func (r *Relay) Edit(ctx context.Context, msg *Message, newContent string) []Result {
	var results []Result
	for _, name := range r.registry.PlatformNames() {
		p, ok := r.registry.Platform(name)
		if !ok {
			continue
		}
		platform := p
		_, err := r.sched.Submit(ctx, name+"/edit", func(ctx context.Context) (any, error) {
			return nil, platform.EditMessage(ctx, msg.Channel, msg, newContent)
		})
		results = append(results, Result{Platform: name, Op: OpEdit, Err: wrapOp(name, OpEdit, err)})
	}
	msg.SetContent(newContent)
	logFailures("edit", results)
	return results
}

// Delete removes msg on every registered platform. Local state is left
// untouched: the message stays registered with its id map intact, so later
// edit attempts are answered by the platforms (typically with not-found).
func (r *Relay) Delete(ctx context.Context, msg *Message) []Result {
	var results []Result
	for _, name := range r.registry.PlatformNames() {
		p, ok := r.registry.Platform(name)
		if !ok {
			continue
		}
		platform := p
		_, err := r.sched.Submit(ctx, name+"/delete", func(ctx context.Context) (any, error) {
			return nil, platform.DeleteMessage(ctx, msg.Channel, msg)
		})
		results = append(results, Result{Platform: name, Op: OpDelete, Err: wrapOp(name, OpDelete, err)})
	}
	logFailures("delete", results)
	return results
}

func (r *Relay) submitSend(ctx context.Context, platform Platform, msg *Message) (string, error) {
	v, err := r.sched.Submit(ctx, platform.Name()+"/send", func(ctx context.Context) (any, error) {
		return platform.SendMessage(ctx, msg.Channel, msg.Content(), msg.User, msg.ReplyTo, msg.Origin.Attachments)
	})
	if err != nil {
		return "", wrapOp(platform.Name(), OpSend, err)
	}
	id, _ := v.(string)
	return id, nil
}

func wrapOp(platform string, op Op, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %s: %w", platform, op, err)
}

func logFailures(sweep string, results []Result) {
	for _, r := range Failed(results) {
		log.Printf("[Relay] %s failed on %s: %v", sweep, r.Platform, r.Err)
	}
}
