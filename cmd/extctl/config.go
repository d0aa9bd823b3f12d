package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/extpipe/internal/pipe"
)

type fileConfig struct {
	PipeName         string `toml:"pipe_name"`
	ClientID         string `toml:"client_id"`
	ConnectTimeout   string `toml:"connect_timeout"`
	SettleDelay      string `toml:"settle_delay"`
	ReceiveTimeout   string `toml:"receive_timeout"`
	ReplyTimeout     string `toml:"reply_timeout"`
	StopWriteTimeout string `toml:"stop_write_timeout"`
	MaxLineBytes     int    `toml:"max_line_bytes"`
	MaxPackageBytes  int    `toml:"max_package_bytes"`
	TrustedSender    string `toml:"trusted_sender"`
	AdminListen      string `toml:"admin_listen"`
	LogLevel         string `toml:"log_level"`
}

type appConfig struct {
	Pipe        pipe.Config
	AdminListen string
	LogLevel    string
}

const (
	defaultPipeName = "extensionPipe"
	defaultClientID = "extctl"
)

func defaultAppConfig() appConfig {
	cfg := pipe.DefaultConfig()
	cfg.PipeName = defaultPipeName
	cfg.ClientID = defaultClientID
	return appConfig{Pipe: cfg}
}

func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load extctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return appConfig{}, fmt.Errorf("load extctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("pipe_name") {
		if v := strings.TrimSpace(raw.PipeName); v != "" {
			cfg.Pipe.PipeName = v
		}
	}
	if meta.IsDefined("client_id") {
		cfg.Pipe.ClientID = strings.TrimSpace(raw.ClientID)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Pipe.Session.ConnectTimeout},
		{"settle_delay", raw.SettleDelay, &cfg.Pipe.Session.SettleDelay},
		{"receive_timeout", raw.ReceiveTimeout, &cfg.Pipe.Session.ReceiveTimeout},
		{"reply_timeout", raw.ReplyTimeout, &cfg.Pipe.Session.ReplyTimeout},
		{"stop_write_timeout", raw.StopWriteTimeout, &cfg.Pipe.Session.StopWriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return appConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_line_bytes") {
		cfg.Pipe.Session.MaxLineBytes = raw.MaxLineBytes
	}
	if meta.IsDefined("max_package_bytes") {
		cfg.Pipe.Session.MaxPackageBytes = raw.MaxPackageBytes
	}
	if meta.IsDefined("trusted_sender") {
		cfg.Pipe.Session.TrustedSender = strings.TrimSpace(raw.TrustedSender)
	}
	if meta.IsDefined("admin_listen") {
		cfg.AdminListen = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}
