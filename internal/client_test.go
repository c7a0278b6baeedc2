package internal

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/storage"
)

func TestParseServerFrame(t *testing.T) {
	history, _ := encodeFrame(EventLoadHistory, []storage.Message{{Room: "lobby", Username: "alice", Text: "hi", DisplayTime: "1:02:03 PM"}})
	message, _ := encodeFrame(EventMessage, ChatMessage{User: "bob", Text: "yo", Timestamp: "1:02:04 PM"})
	typing, _ := encodeFrame(EventTyping, "carol")

	if got, ok := parseServerFrame(history).(historyMsg); !ok || len(got) != 1 || got[0].Username != "alice" {
		t.Fatalf("unexpected history parse %#v", parseServerFrame(history))
	}
	if got, ok := parseServerFrame(message).(incomingMsg); !ok || got.User != "bob" || got.Text != "yo" {
		t.Fatalf("unexpected message parse %#v", parseServerFrame(message))
	}
	if got, ok := parseServerFrame(typing).(typingMsg); !ok || string(got) != "carol" {
		t.Fatalf("unexpected typing parse %#v", parseServerFrame(typing))
	}
	if parseServerFrame([]byte("garbage")) != nil {
		t.Fatalf("garbage frame should be ignored")
	}
	if parseServerFrame([]byte(`{"event":"other"}`)) != nil {
		t.Fatalf("unknown event should be ignored")
	}
}

func TestBuildExistsURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "ws://localhost:8080/ws", want: "http://localhost:8080/exists?room=my+room"},
		{base: "wss://chat.example.com/ws?x=1", want: "https://chat.example.com/exists?room=my+room"},
		{base: "http://localhost:8080/ws", wantErr: true},
	}
	for _, tt := range tests {
		got, err := buildExistsURL(tt.base, "my room")
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tt.base)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: got %q err=%v, want %q", tt.base, got, err, tt.want)
		}
	}
}

func TestGenerateSecureKey(t *testing.T) {
	key := generateSecureKey(12)
	if len(key) != 12 {
		t.Fatalf("expected 12 characters, got %q", key)
	}
	if generateSecureKey(12) == key {
		t.Fatalf("keys should not repeat")
	}
	if len(generateSecureKey(2)) != 8 {
		t.Fatalf("short keys should be padded to 8 characters")
	}
}

func TestModelRendersIncomingEvents(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "lobby", "alice")
	model.now = func() time.Time { return fixedNow }

	model.Update(historyMsg{{Username: "bob", Text: "earlier", DisplayTime: "1:00:00 PM"}})
	model.Update(incomingMsg{User: "bob", Text: "now", Timestamp: "1:00:05 PM"})
	model.Update(typingMsg("carol"))

	if len(model.lines) != 3 {
		t.Fatalf("expected history, join notice and message, got %+v", model.lines)
	}
	if model.lines[0].Text != "earlier" || !model.lines[1].Local || model.lines[2].Text != "now" {
		t.Fatalf("unexpected lines %+v", model.lines)
	}
	if names := model.typingNames(); len(names) != 1 || names[0] != "carol" {
		t.Fatalf("expected carol typing, got %v", names)
	}
	model.now = func() time.Time { return fixedNow.Add(typingShowFor + time.Second) }
	if names := model.typingNames(); len(names) != 0 {
		t.Fatalf("typing indicator should expire, got %v", names)
	}
}

func TestModelIgnoresStaleConnectionLoss(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "lobby", "alice")
	model.isConnected = true
	model.connGen = 2

	model.Update(connLostMsg{gen: 1, err: errors.New("old socket closed")})
	if !model.isConnected || model.connectionError != nil {
		t.Fatalf("stale connection loss should be ignored")
	}
}

func TestJoinCommandWhileDisconnected(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "lobby", "alice")
	model.lines = append(model.lines, chatLine{User: "bob", Text: "old room"})
	model.textInput.SetValue("/join cave")

	model.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if model.roomKey != "cave" {
		t.Fatalf("expected room switch, got %q", model.roomKey)
	}
	if len(model.lines) != 0 {
		t.Fatalf("switching rooms should clear the log")
	}
	if model.textInput.Value() != "" {
		t.Fatalf("input should be cleared")
	}
}

func TestUnknownCommandAddsNotice(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "lobby", "alice")
	model.textInput.SetValue("/dance")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(model.lines) != 1 || !model.lines[0].Local {
		t.Fatalf("expected a local notice, got %+v", model.lines)
	}
}
