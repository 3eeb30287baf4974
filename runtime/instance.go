package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/channel"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
)

type instanceKey struct {
	name string
	id   string
}

// instance is one live agent: its own inbox, its own driver
// goroutine, and the bookkeeping the runtime needs to reap it.
// Grounded on internal/runtime/local.go's per-agent goroutine +
// channel pairing, generalized to the spec's explicit lifecycle
// states and idle-timestamp tracking.
type instance struct {
	key  instanceKey
	spec *AgentSpec
	rt   *Runtime

	agent agent.Agent
	inbox *channel.Channel

	mu             sync.Mutex
	state          agent.State
	lastActive     time.Time
	defaultReplyTo *envelope.Address

	done chan struct{}
}

func newInstance(rt *Runtime, spec *AgentSpec, key instanceKey) *instance {
	capacity := spec.InboxCapacity
	if capacity == 0 {
		capacity = rt.config.DefaultInboxCapacity
	}
	var inbox *channel.Channel
	if capacity > 0 {
		inbox = channel.New(capacity)
	} else {
		inbox = channel.NewUnbounded()
	}
	return &instance{
		key:        key,
		spec:       spec,
		rt:         rt,
		agent:      spec.New(),
		inbox:      inbox,
		state:      agent.Starting,
		lastActive: rt.now(),
		done:       make(chan struct{}),
	}
}

func (i *instance) address() envelope.Address {
	return envelope.Address{Name: i.key.name, Id: i.key.id}
}

func (i *instance) touch() {
	i.mu.Lock()
	i.lastActive = i.rt.now()
	i.mu.Unlock()
}

func (i *instance) idleSince() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastActive
}

func (i *instance) setState(s agent.State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

func (i *instance) getState() agent.State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// run is the instance's driver task: it calls Started, then drains
// the inbox serially until a terminate envelope or a closed inbox,
// then calls Stopped. It owns the only writer to i.state beyond
// construction.
func (i *instance) run(ctx context.Context) {
	defer close(i.done)

	handleCtx := agent.ContextWithHandle(ctx, &instanceHandle{rt: i.rt, self: i.address()})

	if err := i.agent.Started(handleCtx); err != nil {
		i.rt.logger().Error("agent started hook failed", "name", i.key.name, "id", i.key.id, "err", err)
	}
	i.setState(agent.Running)
	i.rt.recordActivation(i.key.name)

	for {
		env, ok, err := i.inbox.Read(ctx)
		if err != nil || !ok {
			break
		}
		i.touch()

		if env.IsTerminate() && len(env.Payload) == 0 && env.Header[envelope.HeaderType] == terminateControlType {
			break
		}

		if target, ok := env.IsSetReplyTo(); ok {
			i.mu.Lock()
			i.defaultReplyTo = &target
			i.mu.Unlock()
			continue
		}

		if _, isErr := env.IsError(); isErr {
			// An error surfacing mid-pipeline is not a new unit of work
			// for this instance; it passes through untouched to wherever
			// this instance's own replies would go, so a failure at any
			// hop of a rewired chain still reaches the original caller
			// instead of being fed into the next step's Receive.
			if target, ok := i.replyTarget(env); ok {
				_ = i.rt.transport.Publish(ctx, target, env, publishNoProbe)
			}
			continue
		}

		i.dispatch(handleCtx, env)
	}

	i.setState(agent.Stopping)
	if err := i.agent.Stopped(context.Background()); err != nil {
		i.rt.logger().Error("agent stopped hook failed", "name", i.key.name, "id", i.key.id, "err", err)
	}
	i.setState(agent.Stopped)
	i.rt.recordDeactivation(i.key.name)
}

// terminateControlType marks a terminate envelope as the runtime's
// own stop signal (reaper or explicit deregister) rather than the
// last chunk of a stream the agent itself emitted, which also sets
// header.terminate=1 but carries agent-produced payload/type.
const terminateControlType = "_runtime.stop"

func (i *instance) dispatch(ctx context.Context, env envelope.Envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			i.rt.logger().Error("agent receive panicked", "name", i.key.name, "id", i.key.id, "err", err)
			i.replyError(ctx, env, rterr.Wrap(rterr.ErrInternalAgent, i.key.name, err))
		}
		i.rt.recordReceive(i.key.name, time.Since(start))
	}()

	reply, err := i.agent.Receive(ctx, env)
	if err != nil {
		i.rt.logger().Error("agent receive returned error", "name", i.key.name, "id", i.key.id, "err", err)
		i.replyError(ctx, env, rterr.Wrap(rterr.ErrInternalAgent, i.key.name, err))
		return
	}

	replyTo, hasReply := i.replyTarget(env)

	switch reply.Kind {
	case agent.NoReply:
		return
	case agent.SingleReply:
		if !hasReply {
			return
		}
		_ = i.rt.transport.Publish(ctx, replyTo, reply.Envelope, publishNoProbe)
	case agent.StreamReply:
		if !hasReply || reply.Stream == nil {
			return
		}
		go func() {
			for chunk := range reply.Stream {
				if err := i.rt.transport.Publish(ctx, replyTo, chunk, publishNoProbe); err != nil {
					return
				}
				if chunk.IsTerminate() {
					return
				}
			}
		}()
	}
}

// replyTarget resolves where a Receive result should be published: the
// envelope's own header.reply_to if present, otherwise the instance's
// persistent default set via a TypeSetReplyTo control envelope (see
// envelope.SetReplyToEnvelope), used by the sequential orchestration
// agent to rewire a pipeline's hops once instead of on every message.
func (i *instance) replyTarget(env envelope.Envelope) (envelope.Address, bool) {
	if addr, ok := env.Header.ReplyTo(); ok {
		return addr, true
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.defaultReplyTo != nil {
		return *i.defaultReplyTo, true
	}
	return envelope.Address{}, false
}

func (i *instance) replyError(ctx context.Context, env envelope.Envelope, err error) {
	replyTo, ok := i.replyTarget(env)
	if !ok {
		return
	}
	errEnv := envelope.ErrorEnvelope(rterr.Kind(err), err.Error()).Terminate()
	_ = i.rt.transport.Publish(ctx, replyTo, errEnv, publishNoProbe)
}

func (i *instance) enqueueTerminate(ctx context.Context) error {
	env := envelope.Envelope{
		Header: envelope.Header{
			envelope.HeaderType:      terminateControlType,
			envelope.HeaderTerminate: "1",
		},
	}
	return i.inbox.Write(ctx, env)
}

func (i *instance) awaitStopped(ctx context.Context) error {
	select {
	case <-i.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
