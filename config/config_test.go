package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.yaml")
	if err := os.WriteFile(path, []byte("transport: local\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("want default listen addr, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("want default session backend memory, got %q", cfg.Session.Backend)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("want default session TTL 1h, got %v", cfg.Session.TTL)
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := &Config{Transport: "carrier-pigeon", Session: SessionConfig{Backend: "memory"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown transport")
	}
}

func TestValidateRequiresBrokerAddress(t *testing.T) {
	cfg := &Config{Transport: "broker", Session: SessionConfig{Backend: "memory"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when neither broker address is set")
	}
}

func TestRuntimeConfigToOptionsOmitsUnsetFields(t *testing.T) {
	rc := RuntimeConfig{RequestTimeout: 5 * time.Second}
	opts := rc.ToOptions()
	if len(opts) != 1 {
		t.Fatalf("want exactly one option for one set field, got %d", len(opts))
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.yaml")

	original := &Config{
		Transport: "httpgw",
		HTTPGateway: HTTPGatewayConfig{ListenAddr: ":9090"},
	}
	if err := Save(original, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Transport != "httpgw" || loaded.HTTPGateway.ListenAddr != ":9090" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
