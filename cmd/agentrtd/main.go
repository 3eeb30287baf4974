// Command agentrtd runs a standalone agent runtime process: it loads
// a YAML configuration, wires the selected transport binding, starts
// the runtime with whatever agents the configuration declares, and
// serves the ambient health/metrics HTTP surface until a shutdown
// signal arrives.
//
// Grounded on cmd/aixgo/main.go: flag parsing, observability.
// InitMetrics/InitHealthChecker generalized to obs.NewHealthChecker/
// obs.RuntimeLivenessCheck, a goroutine-started HTTP server, and
// os/signal+context.WithTimeout graceful shutdown. This is
// demonstration wiring for the ambient stack; the runtime core has no
// dependency on it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/config"
	"github.com/aixgo-dev/agentrt/discovery"
	"github.com/aixgo-dev/agentrt/obs"
	"github.com/aixgo-dev/agentrt/orchestration"
	"github.com/aixgo-dev/agentrt/runtime"
	"github.com/aixgo-dev/agentrt/session"
	"github.com/aixgo-dev/agentrt/transport"
	"github.com/aixgo-dev/agentrt/transport/broker"
	"github.com/aixgo-dev/agentrt/transport/httpgw"
	"github.com/aixgo-dev/agentrt/transport/local"
)

var (
	configFile = flag.String("config", getEnv("AGENTRT_CONFIG", "config/agentrt.yaml"), "runtime configuration file")
	httpAddr   = flag.String("http-addr", "", "override server.listen_addr from the config file")
	_          = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("agentrtd: %v", err)
	}
	if *httpAddr != "" {
		cfg.Server.ListenAddr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("agentrtd: %v", err)
	}

	log.Printf("agentrtd: starting with transport=%s", cfg.Transport)

	tr, stopTransport, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("agentrtd: %v", err)
	}
	defer stopTransport()

	backend, err := buildSessionBackend(cfg.Session)
	if err != nil {
		log.Fatalf("agentrtd: %v", err)
	}
	sessionMgr := session.NewManager(backend)
	defer sessionMgr.Close()

	rt := runtime.New(tr, cfg.Runtime.ToOptions()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registerConfiguredAgents(ctx, rt, cfg); err != nil {
		log.Fatalf("agentrtd: %v", err)
	}
	if err := rt.Register(ctx, runtime.AgentSpec{
		Name: discovery.Name,
		New:  func() agent.Agent { return discovery.New(rt, rt) },
	}); err != nil {
		log.Fatalf("agentrtd: register discovery: %v", err)
	}

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("agentrtd: start: %v", err)
	}

	health := obs.NewHealthChecker()
	health.RegisterCheck(obs.RuntimeLivenessCheck())
	obsServer := obs.NewServer(cfg.Server.ListenAddr, health)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("agentrtd: serving health/metrics on %s", cfg.Server.ListenAddr)
		if err := obsServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Printf("agentrtd: %v", err)
	case <-quit:
		log.Println("agentrtd: shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := rt.Stop(shutdownCtx); err != nil {
		log.Printf("agentrtd: runtime stop: %v", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("agentrtd: http server shutdown: %v", err)
	}
	log.Println("agentrtd: stopped")
}

// buildTransport constructs the binding cfg.Transport names, starting
// a server goroutine first when this process hosts one.
func buildTransport(cfg *config.Config) (transport.Transport, func(), error) {
	switch cfg.Transport {
	case "", "local":
		return local.New(), func() {}, nil

	case "httpgw":
		if cfg.HTTPGateway.ListenAddr != "" {
			inner := local.New()
			srv := httpgw.NewServer(cfg.HTTPGateway.ListenAddr, inner)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Printf("agentrtd: httpgw server: %v", err)
				}
			}()
			return inner, func() { _ = srv.Shutdown(context.Background()) }, nil
		}
		client := httpgw.NewClient(cfg.HTTPGateway.ClientBaseURL, 0)
		return client, func() { client.Close() }, nil

	case "broker":
		if cfg.Broker.ListenAddr != "" {
			lis, err := net.Listen("tcp", cfg.Broker.ListenAddr)
			if err != nil {
				return nil, func() {}, fmt.Errorf("broker listen: %w", err)
			}
			_, gs := broker.NewServer()
			go func() {
				if err := gs.Serve(lis); err != nil {
					log.Printf("agentrtd: broker server: %v", err)
				}
			}()
			tr, err := broker.Dial(context.Background(), cfg.Broker.ListenAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				gs.Stop()
				return nil, func() {}, fmt.Errorf("broker self-dial: %w", err)
			}
			return tr, func() { tr.Close(); gs.Stop() }, nil
		}
		tr, err := broker.Dial(context.Background(), cfg.Broker.DialAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, func() {}, fmt.Errorf("broker dial: %w", err)
		}
		return tr, func() { tr.Close() }, nil

	default:
		return nil, func() {}, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func buildSessionBackend(cfg config.SessionConfig) (session.StorageBackend, error) {
	switch cfg.Backend {
	case "", "memory":
		return session.NewMemoryBackend(), nil
	case "redis":
		return session.NewRedisBackend(session.RedisConfig{Addr: cfg.RedisURL, SessionTTL: cfg.TTL})
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// registerConfiguredAgents builds and registers the orchestration
// agents cfg.Agents declares. Unrecognized kinds are rejected rather
// than silently skipped, since a typo'd kind would otherwise leave an
// operator's pipeline quietly unregistered.
func registerConfiguredAgents(ctx context.Context, rt *runtime.Runtime, cfg *config.Config) error {
	for name, ac := range cfg.Agents {
		name, ac := name, ac
		var spec runtime.AgentSpec
		switch ac.Kind {
		case "sequential":
			steps := stringSliceSetting(ac.Settings, "steps")
			spec = runtime.AgentSpec{Name: name, New: func() agent.Agent { return orchestration.NewSequential(steps...) }}

		case "parallel":
			branches := stringSliceSetting(ac.Settings, "branches")
			aggregator, _ := ac.Settings["aggregator"].(string)
			deadline := durationSetting(ac.Settings, "deadline_ms")
			spec = runtime.AgentSpec{Name: name, New: func() agent.Agent { return orchestration.NewParallel(branches, aggregator, deadline) }}

		default:
			return fmt.Errorf("agent %q: unknown kind %q", name, ac.Kind)
		}

		sessionKeyed, _ := ac.Settings["session_keyed"].(bool)
		spec.SessionKeyed = sessionKeyed

		if err := rt.Register(ctx, spec); err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
	}
	return nil
}

func stringSliceSetting(settings map[string]interface{}, key string) []string {
	raw, _ := settings[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func durationSetting(settings map[string]interface{}, key string) time.Duration {
	ms, _ := settings[key].(int)
	return time.Duration(ms) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
