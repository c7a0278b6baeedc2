package app

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr            string        `env:"ROOMCHAT_ADDR" envDefault:":8080"`
	Path            string        `env:"ROOMCHAT_PATH" envDefault:"/ws"`
	DBPath          string        `env:"ROOMCHAT_DB_PATH"`
	HistoryLimit    int           `env:"ROOMCHAT_HISTORY_LIMIT" envDefault:"50"`
	StoreTimeout    time.Duration `env:"ROOMCHAT_STORE_TIMEOUT" envDefault:"5s"`
	MessageRate     float64       `env:"ROOMCHAT_MESSAGE_RATE" envDefault:"5"`
	MessageBurst    int           `env:"ROOMCHAT_MESSAGE_BURST" envDefault:"10"`
	ConnectLimit    int           `env:"ROOMCHAT_CONNECT_LIMIT" envDefault:"60"`
	ShutdownTimeout time.Duration `env:"ROOMCHAT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"ROOMCHAT_LOG_LEVEL" envDefault:"info"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `env:"ROOMCHAT_SERVER" envDefault:"ws://localhost:8080/ws"`
	Username  string `env:"ROOMCHAT_USER"`
	RoomKey   string
}

// ParseServerConfig reads ROOMCHAT_* variables and then lets flags override them.
func ParseServerConfig(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address")
	fs.StringVar(&cfg.Path, "path", cfg.Path, "websocket path")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.IntVar(&cfg.HistoryLimit, "history", cfg.HistoryLimit, "messages sent to a joining client")
	fs.Float64Var(&cfg.MessageRate, "rate", cfg.MessageRate, "chat messages per second per connection (0 disables)")
	fs.IntVar(&cfg.MessageBurst, "burst", cfg.MessageBurst, "chat message burst per connection")
	fs.IntVar(&cfg.ConnectLimit, "connect-limit", cfg.ConnectLimit, "upgrades per IP per minute (0 disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}
	cfg.Path = NormalizeJoinPath(cfg.Path)
	return cfg, nil
}

// ParseClientConfig reads the client settings; the first positional argument is the room.
func ParseClientConfig(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "WebSocket URL (e.g., ws://localhost:8080/ws)")
	fs.StringVar(&cfg.Username, "user", cfg.Username, "username to join with")
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, err
	}
	if fs.NArg() >= 1 {
		cfg.RoomKey = fs.Arg(0)
	}
	return cfg, nil
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("ROOMCHAT_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomchat", "roomchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Roomchat", "roomchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Roomchat", "roomchat.db")
		}
		return filepath.Join(home, ".local", "share", "roomchat", "roomchat.db")
	}
	return filepath.Join(".", ".roomchat", "roomchat.db")
}

// NormalizeJoinPath guarantees the websocket path starts with '/' and
// falls back to /ws when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

// NewLogger builds the process logger for the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
