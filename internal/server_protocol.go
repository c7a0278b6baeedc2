package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// event names on the wire
const (
	EventJoinRoom    = "joinRoom"
	EventChatMessage = "chatMessage"
	EventTyping      = "typing"
	EventLoadHistory = "loadHistory"
	EventMessage     = "message"
)

// SystemUser is the author shown on join, leave and throttle notices.
const SystemUser = "System"

// displayTimeLayout renders message times as a wall clock, e.g. 3:04:05 PM.
const displayTimeLayout = "3:04:05 PM"

var errEmptyEvent = errors.New("frame has no event name")

// Envelope is the JSON object every websocket text frame carries.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ChatMessage is the payload of an outbound message event.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	envelope := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		envelope.Data = raw
	}
	return json.Marshal(envelope)
}

func decodeFrame(payload []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if envelope.Event == "" {
		return Envelope{}, errEmptyEvent
	}
	return envelope, nil
}
