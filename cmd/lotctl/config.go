package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lotproto/lot/internal/transfer"
)

// lotctl config.toml key mapping to transfer parameters and addresses.
type fileConfig struct {
	MTU                int    `toml:"mtu"`
	WindowSize         int    `toml:"window_size"`
	AckTimeout         string `toml:"ack_timeout"`
	MaxRetransmissions int    `toml:"max_retransmissions"`
	SessionExpiry      string `toml:"session_expiry"`
	Listen             string `toml:"listen"`
	Peer               string `toml:"peer"`
}

type runConfig struct {
	Params transfer.Params
	Listen string
	Peer   string
}

func defaultRunConfig() runConfig {
	return runConfig{
		Params: transfer.DefaultParams(),
		Listen: ":0",
	}
}

// loadConfig starts from defaults and applies only keys the file
// defines, then flag overrides.
func loadConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return runConfig{}, fmt.Errorf("load config: %w", err)
		}

		if meta.IsDefined("mtu") {
			cfg.Params.MTU = uint16(raw.MTU)
		}
		if meta.IsDefined("window_size") {
			cfg.Params.WindowSize = uint16(raw.WindowSize)
		}
		if meta.IsDefined("ack_timeout") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.AckTimeout))
			if err != nil {
				return runConfig{}, fmt.Errorf("parse ack_timeout: %w", err)
			}
			cfg.Params.AckTimeout = d
		}
		if meta.IsDefined("max_retransmissions") {
			cfg.Params.MaxRetransmissions = uint16(raw.MaxRetransmissions)
		}
		if meta.IsDefined("session_expiry") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.SessionExpiry))
			if err != nil {
				return runConfig{}, fmt.Errorf("parse session_expiry: %w", err)
			}
			cfg.Params.SessionExpiry = d
		}
		if meta.IsDefined("listen") {
			cfg.Listen = strings.TrimSpace(raw.Listen)
		}
		if meta.IsDefined("peer") {
			cfg.Peer = strings.TrimSpace(raw.Peer)
		}
	}

	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if peerAddr != "" {
		cfg.Peer = peerAddr
	}

	if err := cfg.Params.Validate(); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}
