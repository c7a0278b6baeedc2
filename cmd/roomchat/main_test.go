package main

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		args     []string
		wantMode string
		wantRest int
	}{
		{args: nil, wantMode: modeClient},
		{args: []string{"server", "-addr", ":9000"}, wantMode: modeServer, wantRest: 2},
		{args: []string{"LOCAL"}, wantMode: modeLocal},
		{args: []string{"lobby"}, wantMode: modeClient, wantRest: 1},
	}
	for _, tt := range tests {
		mode, rest := parseMode(tt.args)
		if mode != tt.wantMode || len(rest) != tt.wantRest {
			t.Fatalf("parseMode(%v) = %q %v", tt.args, mode, rest)
		}
	}
}

func TestBuildWebsocketURL(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:4000": "ws://127.0.0.1:4000/ws",
		"[::]:4000":      "ws://127.0.0.1:4000/ws",
		"localhost":      "ws://localhost/ws",
	}
	for addr, want := range tests {
		if got := buildWebsocketURL(addr, "ws"); got != want {
			t.Fatalf("buildWebsocketURL(%q) = %q, want %q", addr, got, want)
		}
	}
}
