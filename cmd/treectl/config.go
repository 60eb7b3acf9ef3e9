package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// demoConfig shapes the topology the demo command spins up.
type demoConfig struct {
	Realm          string
	ServiceSession string
	ClientSession  string
	ServiceName    string
	ClientName     string
	Addends        []int
	Payload        string
}

func defaultDemoConfig() demoConfig {
	return demoConfig{
		Realm:          "demo",
		ServiceSession: "session1",
		ClientSession:  "session2",
		ServiceName:    "calc",
		ClientName:     "client",
		Addends:        []int{1, 2, 3},
		Payload:        "sum changed",
	}
}

type fileConfig struct {
	Realm          string `toml:"realm"`
	ServiceSession string `toml:"service_session"`
	ClientSession  string `toml:"client_session"`
	ServiceName    string `toml:"service_name"`
	ClientName     string `toml:"client_name"`
	Addends        []int  `toml:"addends"`
	Payload        string `toml:"payload"`
}

// loadDemoConfig overlays the TOML file at path onto the defaults; only
// keys present in the file override.
func loadDemoConfig(path string) (demoConfig, error) {
	cfg := defaultDemoConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return demoConfig{}, fmt.Errorf("load demo config: %w", err)
	}

	if meta.IsDefined("realm") {
		if realm := strings.TrimSpace(raw.Realm); realm != "" {
			cfg.Realm = realm
		}
	}
	if meta.IsDefined("service_session") {
		if s := strings.TrimSpace(raw.ServiceSession); s != "" {
			cfg.ServiceSession = s
		}
	}
	if meta.IsDefined("client_session") {
		if s := strings.TrimSpace(raw.ClientSession); s != "" {
			cfg.ClientSession = s
		}
	}
	if meta.IsDefined("service_name") {
		if s := strings.TrimSpace(raw.ServiceName); s != "" {
			cfg.ServiceName = s
		}
	}
	if meta.IsDefined("client_name") {
		if s := strings.TrimSpace(raw.ClientName); s != "" {
			cfg.ClientName = s
		}
	}
	if meta.IsDefined("addends") {
		cfg.Addends = raw.Addends
	}
	if meta.IsDefined("payload") {
		cfg.Payload = raw.Payload
	}

	if cfg.ServiceSession == cfg.ClientSession {
		return demoConfig{}, fmt.Errorf(
			"load demo config: service and client must attach to distinct sessions (both %q)",
			cfg.ServiceSession,
		)
	}
	if cfg.ServiceName == cfg.ClientName {
		return demoConfig{}, fmt.Errorf(
			"load demo config: service and client need distinct node names (both %q)",
			cfg.ServiceName,
		)
	}
	return cfg, nil
}
