package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/danmuck/extpipe/internal/testutil/testlog"
)

func TestLoadConfigExample(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Pipe.PipeName != "extensionPipe" || cfg.Pipe.ClientID != "ext.hello" {
		t.Fatalf("unexpected identity: pipe=%q id=%q", cfg.Pipe.PipeName, cfg.Pipe.ClientID)
	}
	s := cfg.Pipe.Session
	if s.ConnectTimeout != 5*time.Second || s.SettleDelay != 250*time.Millisecond {
		t.Fatalf("unexpected connect timings: %+v", s)
	}
	if s.ReceiveTimeout != 2*time.Second || s.ReplyTimeout != 10*time.Second || s.StopWriteTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected reply timings: %+v", s)
	}
	if s.MaxLineBytes != 65536 || s.MaxPackageBytes != 4194304 || s.TrustedSender != session.TrustedSender {
		t.Fatalf("unexpected limits: %+v", s)
	}
	if cfg.AdminListen != "127.0.0.1:7040" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected admin=%q level=%q", cfg.AdminListen, cfg.LogLevel)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig(writeConfig(t, `client_id = "ext.min"`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := defaultAppConfig()
	if cfg.Pipe.PipeName != defaultPipeName || cfg.Pipe.ClientID != "ext.min" {
		t.Fatalf("unexpected identity: %+v", cfg.Pipe)
	}
	if cfg.Pipe.Session != def.Pipe.Session {
		t.Fatalf("session defaults changed: %+v", cfg.Pipe.Session)
	}
	if cfg.AdminListen != "" {
		t.Fatalf("admin should be disabled by default: %q", cfg.AdminListen)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad duration": `settle_delay = "soon"`,
		"unknown key":  `pipe = "x"`,
		"bad toml":     `client_id = `,
	}
	for name, body := range cases {
		if _, err := loadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil || !strings.Contains(err.Error(), "load extctl config") {
		t.Fatalf("expected load error, got %v", err)
	}
}
