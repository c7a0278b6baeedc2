package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	intrnl "roomchat/internal"
)

// RunClient launches the Bubble Tea TUI against the configured server.
func RunClient(cfg ClientConfig) error {
	serverURL, err := ClientURL(cfg.ServerURL)
	if err != nil {
		return err
	}
	return intrnl.RunClient(serverURL, cfg.RoomKey, cfg.Username)
}

// ClientURL turns what a user typed for --server into a websocket URL.
// http(s) schemes map to ws(s), and a bare host gets the default join path.
func ClientURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("server URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("server URL has no host")
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = NormalizeJoinPath("")
	}
	return parsed.String(), nil
}
