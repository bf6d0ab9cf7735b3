package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotproto/lot/internal/transfer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lotctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetFlags(t *testing.T) {
	t.Helper()
	oldListen, oldPeer := listenAddr, peerAddr
	listenAddr, peerAddr = "", ""
	t.Cleanup(func() { listenAddr, peerAddr = oldListen, oldPeer })
}

func TestLoadConfigDefaults(t *testing.T) {
	resetFlags(t)
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := transfer.DefaultParams()
	if cfg.Params != want {
		t.Fatalf("params %+v, want defaults", cfg.Params)
	}
	if cfg.Listen != ":0" || cfg.Peer != "" {
		t.Fatalf("addresses %q %q", cfg.Listen, cfg.Peer)
	}
}

func TestLoadConfigAppliesOnlyDefinedKeys(t *testing.T) {
	resetFlags(t)
	path := writeConfig(t, `
mtu = 256
ack_timeout = "250ms"
peer = "10.0.0.2:7000"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Params.MTU != 256 || cfg.Params.AckTimeout != 250*time.Millisecond {
		t.Fatalf("params %+v", cfg.Params)
	}
	// Undefined keys keep their defaults.
	def := transfer.DefaultParams()
	if cfg.Params.WindowSize != def.WindowSize || cfg.Params.SessionExpiry != def.SessionExpiry {
		t.Fatalf("defaults clobbered: %+v", cfg.Params)
	}
	if cfg.Peer != "10.0.0.2:7000" {
		t.Fatalf("peer %q", cfg.Peer)
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	resetFlags(t)
	path := writeConfig(t, `
listen = ":7000"
peer = "10.0.0.2:7000"
`)
	listenAddr = ":9000"
	peerAddr = "10.0.0.3:9000"
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.Peer != "10.0.0.3:9000" {
		t.Fatalf("flag overrides lost: %q %q", cfg.Listen, cfg.Peer)
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	resetFlags(t)
	path := writeConfig(t, `ack_timeout = "soon"`)
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfigInvalidParamsRejected(t *testing.T) {
	resetFlags(t)
	path := writeConfig(t, `mtu = 4`)
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	resetFlags(t)
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
