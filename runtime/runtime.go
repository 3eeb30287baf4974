// Package runtime implements the owner of a transport, a registry of
// agent specifications, a live table of active instances, and the
// idle-reaper, per SPEC_FULL.md §4.3.
//
// Grounded on internal/agent/types.go's Registry/RuntimeKey pattern
// for registration and context-handle wiring, internal/runtime/
// runtime.go's Config/Option shape, and internal/runtime/
// distributed.go's StartAgentsPhased for the reaper's background-task
// structure.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/obs"
	"github.com/aixgo-dev/agentrt/rterr"
	"github.com/aixgo-dev/agentrt/transport"
)

var publishNoProbe = transport.PublishOptions{}

// Runtime owns a transport, a registry, a live table, and the
// idle-reaper. The zero value is not usable; construct with New.
type Runtime struct {
	transport transport.Transport
	config    Config
	obs       *obs.Runtime

	mu        sync.Mutex
	registry  map[string]*AgentSpec
	instances map[instanceKey]*instance
	subs      map[string]transport.Subscription

	reaperCancel context.CancelFunc
	reaperDone   chan struct{}

	clock func() time.Time
}

// New constructs a Runtime over the given transport, applying opts on
// top of DefaultConfig.
func New(t transport.Transport, opts ...Option) *Runtime {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runtime{
		transport: t,
		config:    cfg,
		obs:       obs.NewRuntime(cfg.EnableMetrics, cfg.EnableTracing),
		registry:  make(map[string]*AgentSpec),
		instances: make(map[instanceKey]*instance),
		subs:      make(map[string]transport.Subscription),
		clock:     time.Now,
	}
}

func (rt *Runtime) now() time.Time       { return rt.clock() }
func (rt *Runtime) logger() *slog.Logger { return rt.obs.Logger() }

func (rt *Runtime) recordActivation(name string) {
	rt.obs.InstanceActivated(name)
	rt.logger().Info("agent activated", "name", name)
}

func (rt *Runtime) recordDeactivation(name string) {
	rt.obs.InstanceDeactivated(name)
	rt.logger().Info("agent deactivated", "name", name)
}

func (rt *Runtime) recordReceive(name string, d time.Duration) {
	rt.obs.ReceiveDuration(name, d)
}

// Register inserts spec into the registry and installs a transport
// subscription dispatching to the activator. Re-registering an
// existing name stores the new spec first and then terminates every
// live instance under that name, including any the activator created
// from the new spec in between; the swap is not atomic with respect
// to envelopes arriving meanwhile.
func (rt *Runtime) Register(ctx context.Context, spec AgentSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("runtime: AgentSpec.Name must not be empty")
	}
	if spec.New == nil {
		return fmt.Errorf("runtime: AgentSpec.New must not be nil")
	}

	rt.mu.Lock()
	prior := rt.registry[spec.Name]
	specCopy := spec
	rt.registry[spec.Name] = &specCopy
	rt.mu.Unlock()

	if prior != nil {
		if err := rt.terminateInstancesFor(ctx, spec.Name); err != nil {
			return err
		}
	}

	rt.mu.Lock()
	_, alreadySubscribed := rt.subs[spec.Name]
	rt.mu.Unlock()
	if alreadySubscribed {
		return nil
	}

	sub, err := rt.transport.Subscribe(ctx, envelope.Address{Name: spec.Name}, rt.activator)
	if err != nil {
		return rterr.Wrap(rterr.ErrTransportFailure, "subscribe "+spec.Name, err)
	}
	rt.mu.Lock()
	rt.subs[spec.Name] = sub
	rt.mu.Unlock()
	return nil
}

// Deregister removes name from the registry, terminates its live
// instances, and tears down its transport subscription. Deregistering
// an unknown name is a no-op.
func (rt *Runtime) Deregister(ctx context.Context, name string) error {
	rt.mu.Lock()
	_, ok := rt.registry[name]
	if !ok {
		rt.mu.Unlock()
		return nil
	}
	delete(rt.registry, name)
	sub := rt.subs[name]
	delete(rt.subs, name)
	rt.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	return rt.terminateInstancesFor(ctx, name)
}

func (rt *Runtime) terminateInstancesFor(ctx context.Context, name string) error {
	rt.mu.Lock()
	var toStop []*instance
	for key, inst := range rt.instances {
		if key.name == name {
			toStop = append(toStop, inst)
		}
	}
	rt.mu.Unlock()

	for _, inst := range toStop {
		if err := inst.enqueueTerminate(ctx); err != nil {
			continue
		}
		_ = inst.awaitStopped(ctx)
		rt.mu.Lock()
		delete(rt.instances, inst.key)
		rt.mu.Unlock()
	}
	return nil
}

// activator is installed as the transport subscription handler for
// every registered name. It resolves which instance an envelope
// belongs to, lazily creating one if necessary, and enqueues the
// envelope on that instance's inbox.
func (rt *Runtime) activator(ctx context.Context, dest envelope.Address, env envelope.Envelope) {
	rt.mu.Lock()
	spec, ok := rt.registry[dest.Name]
	rt.mu.Unlock()
	if !ok {
		// A registered-name subscription outliving its deregistration
		// is a narrow race (Deregister unsubscribes before it returns);
		// silently dropping here matches the in-flight-message handling
		// the reaper already performs.
		return
	}

	id := rt.resolveInstanceID(spec, dest, env)
	key := instanceKey{name: spec.Name, id: id}

	rt.mu.Lock()
	inst, exists := rt.instances[key]
	if !exists {
		inst = newInstance(rt, spec, key)
		rt.instances[key] = inst
		rt.mu.Unlock()
		go inst.run(rt.runCtx())
	} else {
		rt.mu.Unlock()
	}

	if err := inst.inbox.Write(ctx, env); err != nil {
		rt.logger().Warn("dropped envelope on closed inbox", "name", spec.Name, "id", id)
	}
}

func (rt *Runtime) resolveInstanceID(spec *AgentSpec, dest envelope.Address, env envelope.Envelope) string {
	if dest.Id != "" {
		return dest.Id
	}
	if spec.SessionKeyed {
		if sid := env.Header[envelope.HeaderSessionID]; sid != "" {
			return sid
		}
	}
	return fixedInstanceID
}

var backgroundCtx = context.Background()

// runCtx is the context instances' driver goroutines run under. It
// is never cancelled, so no request's deadline ends an instance — an
// instance outlives any single caller, and Stop ends instances by
// enqueueing terminate envelopes.
func (rt *Runtime) runCtx() context.Context {
	return backgroundCtx
}

// Channel is the runtime's request/reply convenience: it delegates to
// the transport's Channel and unwraps a unary reply into a plain
// envelope, converting an error-kind reply envelope into a Go error.
func (rt *Runtime) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, timeout time.Duration) (envelope.Envelope, error) {
	if timeout == 0 {
		timeout = rt.config.RequestTimeout
	}
	reader, err := rt.transport.Channel(ctx, dest, env, transport.ChannelOptions{Timeout: timeout})
	if err != nil {
		return envelope.Envelope{}, err
	}
	got, ok, err := reader.Read(ctx)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if !ok {
		return envelope.Envelope{}, rterr.Wrap(rterr.ErrChannelClosed, dest.String(), nil)
	}
	if kind, isErr := got.IsError(); isErr {
		return envelope.Envelope{}, fmt.Errorf("%s: %s", kind, string(got.Payload))
	}
	return got, nil
}

// Publish fires env at dest without awaiting a reply.
func (rt *Runtime) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope) error {
	return rt.transport.Publish(ctx, dest, env, publishNoProbe)
}

// Start launches the idle-reaper background task.
func (rt *Runtime) Start(ctx context.Context) error {
	reaperCtx, cancel := context.WithCancel(ctx)
	rt.reaperCancel = cancel
	rt.reaperDone = make(chan struct{})
	go rt.reapLoop(reaperCtx)
	return nil
}

// Stop cancels the reaper and terminates every live instance,
// awaiting their stopped hooks.
func (rt *Runtime) Stop(ctx context.Context) error {
	if rt.reaperCancel != nil {
		rt.reaperCancel()
		<-rt.reaperDone
	}

	rt.mu.Lock()
	all := make([]*instance, 0, len(rt.instances))
	for _, inst := range rt.instances {
		all = append(all, inst)
	}
	rt.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range all {
		wg.Add(1)
		go func(inst *instance) {
			defer wg.Done()
			_ = inst.enqueueTerminate(ctx)
			_ = inst.awaitStopped(ctx)
		}(inst)
	}
	wg.Wait()
	return rt.transport.Close()
}

// Names returns every currently registered agent name, in no
// particular order. Used by the discovery agent.
func (rt *Runtime) Names() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.registry))
	for name := range rt.registry {
		names = append(names, name)
	}
	return names
}

// InstanceCount reports how many live instances currently exist for
// name. Best-effort and racy by construction (a live table is always
// changing); used only by discovery's detailed query mode, which the
// spec explicitly marks as not part of the de-duplication key.
func (rt *Runtime) InstanceCount(name string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for key := range rt.instances {
		if key.name == name {
			n++
		}
	}
	return n
}

// instanceHandle is the agent.Handle implementation handed to every
// agent instance via its context, per SPEC_FULL.md §9's lookup-handle
// design note.
type instanceHandle struct {
	rt   *Runtime
	self envelope.Address
}

func (h *instanceHandle) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, stream bool) (agent.Reply, error) {
	if !stream {
		got, err := h.rt.Channel(ctx, dest, env, 0)
		if err != nil {
			return agent.Reply{}, err
		}
		return agent.Reply{Kind: agent.SingleReply, Envelope: got}, nil
	}
	reader, err := h.rt.transport.Channel(ctx, dest, env, transport.ChannelOptions{Stream: true})
	if err != nil {
		return agent.Reply{}, err
	}
	out := make(chan envelope.Envelope)
	go func() {
		defer close(out)
		for {
			got, ok, err := reader.Read(ctx)
			if err != nil || !ok {
				return
			}
			out <- got
			if got.IsTerminate() {
				return
			}
		}
	}()
	return agent.Reply{Kind: agent.StreamReply, Stream: out}, nil
}

func (h *instanceHandle) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope) error {
	return h.rt.Publish(ctx, dest, env)
}

func (h *instanceHandle) Self() envelope.Address {
	return h.self
}
