package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDemoConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "demo.toml")
	content := `
realm = "lab"
service_session = "alpha"
client_session = "beta"
addends = [4, 5]
	`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadDemoConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Realm != "lab" {
		t.Fatalf("unexpected realm: %q", cfg.Realm)
	}
	if cfg.ServiceSession != "alpha" || cfg.ClientSession != "beta" {
		t.Fatalf("unexpected sessions: %q %q", cfg.ServiceSession, cfg.ClientSession)
	}
	if len(cfg.Addends) != 2 || cfg.Addends[0] != 4 || cfg.Addends[1] != 5 {
		t.Fatalf("unexpected addends: %v", cfg.Addends)
	}
	// untouched keys keep their defaults
	if cfg.ServiceName != "calc" || cfg.ClientName != "client" {
		t.Fatalf("unexpected node names: %q %q", cfg.ServiceName, cfg.ClientName)
	}
	if cfg.Payload != "sum changed" {
		t.Fatalf("unexpected payload: %q", cfg.Payload)
	}
}

func TestLoadDemoConfigRejectsSharedSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.toml")
	content := `
service_session = "only"
client_session = "only"
	`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadDemoConfig(path); err == nil {
		t.Fatalf("expected rejection of a shared session")
	}
}
