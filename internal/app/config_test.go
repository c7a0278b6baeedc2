package app

import (
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseServerConfigDefaults(t *testing.T) {
	t.Setenv("ROOMCHAT_DATA_DIR", "/tmp/roomchat-test")
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseServerConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Path != "/ws" {
		t.Fatalf("unexpected listen defaults %q %q", cfg.Addr, cfg.Path)
	}
	if cfg.HistoryLimit != 50 || cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("unexpected history defaults %d %v", cfg.HistoryLimit, cfg.StoreTimeout)
	}
	if cfg.MessageRate != 5 || cfg.MessageBurst != 10 || cfg.ConnectLimit != 60 {
		t.Fatalf("unexpected throttle defaults %+v", cfg)
	}
	if cfg.DBPath != filepath.Join("/tmp/roomchat-test", "roomchat.db") {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
}

func TestParseServerConfigOverrides(t *testing.T) {
	t.Setenv("ROOMCHAT_ADDR", ":9000")
	t.Setenv("ROOMCHAT_PATH", "chat")
	t.Setenv("ROOMCHAT_STORE_TIMEOUT", "750ms")
	t.Setenv("ROOMCHAT_DB_PATH", "/var/lib/roomchat/chat.db")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseServerConfig(fs, []string{"-addr", ":9010", "-rate", "0"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":9010" {
		t.Fatalf("flag should override env, got %q", cfg.Addr)
	}
	if cfg.Path != "/chat" {
		t.Fatalf("path should be normalized, got %q", cfg.Path)
	}
	if cfg.StoreTimeout != 750*time.Millisecond || cfg.MessageRate != 0 {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.DBPath != "/var/lib/roomchat/chat.db" {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
}

func TestParseServerConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("ROOMCHAT_HISTORY_LIMIT", "lots")
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	if _, err := ParseServerConfig(fs, nil); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestParseClientConfig(t *testing.T) {
	t.Setenv("ROOMCHAT_USER", "alice")
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	cfg, err := ParseClientConfig(fs, []string{"-server", "ws://example.test/ws", "lobby"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ServerURL != "ws://example.test/ws" || cfg.Username != "alice" || cfg.RoomKey != "lobby" {
		t.Fatalf("unexpected client config %+v", cfg)
	}
}

func TestNormalizeJoinPath(t *testing.T) {
	tests := map[string]string{"": "/ws", "chat": "/chat", "/ws": "/ws"}
	for in, want := range tests {
		if got := NormalizeJoinPath(in); got != want {
			t.Fatalf("NormalizeJoinPath(%q) = %q, want %q", in, got, want)
		}
	}
}
