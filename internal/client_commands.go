package internal

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"roomchat/internal/storage"
)

type (
	connectedMsg     struct{ conn *websocket.Conn }
	connLostMsg      struct {
		gen int
		err error
	}
	incomingMsg      ChatMessage
	historyMsg       []storage.Message
	typingMsg        string
	typingExpiredMsg struct{}
	errorMsg         error
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	existsMsg        struct {
		key    string
		exists bool
		err    error
	}
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

// connectCmd dials the relay and joins the current room.
func (model *TUIModel) connectCmd() tea.Cmd {
	username, roomKey := model.username, model.roomKey
	return func() tea.Msg {
		wsURL, err := validateWSURL(model.serverURL)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		frame, err := encodeFrame(EventJoinRoom, JoinRequest{Username: username, Room: roomKey})
		if err == nil {
			err = conn.WriteMessage(websocket.TextMessage, frame)
		}
		if err != nil {
			_ = conn.Close()
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// HTTP GET against /exists so we can warn the user
func (model *TUIModel) existsCmd(key string) tea.Cmd {
	return func() tea.Msg {
		urlStr, err := buildExistsURL(model.serverURL, key)
		if err != nil {
			return existsMsg{key: key, exists: false, err: err}
		}
		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get(urlStr)
		if err != nil {
			return existsMsg{key: key, exists: false, err: err}
		}
		_ = resp.Body.Close()
		return existsMsg{key: key, exists: resp.StatusCode == http.StatusOK, err: nil}
	}
}

// readOnceCmd waits for the next frame and turns it into a tea message.
func (model *TUIModel) readOnceCmd() tea.Cmd {
	conn, gen := model.websocketConn, model.connGen
	return func() tea.Msg {
		if conn == nil {
			return connLostMsg{gen: gen, err: fmt.Errorf("websocket not connected")}
		}
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return connLostMsg{gen: gen, err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if msg := parseServerFrame(payload); msg != nil {
				return msg
			}
		}
	}
}

func parseServerFrame(payload []byte) tea.Msg {
	envelope, err := decodeFrame(payload)
	if err != nil {
		return nil
	}
	switch envelope.Event {
	case EventLoadHistory:
		var history []storage.Message
		if err := json.Unmarshal(envelope.Data, &history); err != nil {
			return nil
		}
		return historyMsg(history)
	case EventMessage:
		var chat ChatMessage
		if err := json.Unmarshal(envelope.Data, &chat); err != nil {
			return nil
		}
		return incomingMsg(chat)
	case EventTyping:
		var name string
		if err := json.Unmarshal(envelope.Data, &name); err != nil {
			return nil
		}
		return typingMsg(name)
	}
	return nil
}

// sendCmd writes one frame on the current connection from a tea command.
func (model *TUIModel) sendCmd(event string, data any) tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if err := model.writeFrame(conn, event, data); err != nil {
			return errorMsg(err)
		}
		return nil
	}
}

func (model *TUIModel) writeFrame(conn *websocket.Conn, event string, data any) error {
	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	model.writeMutex.Lock()
	defer model.writeMutex.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (model *TUIModel) closeConn(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
}

// entry for bubbletea
func RunClient(serverURL, roomKey, username string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, roomKey, username))
	_, err := program.Run()
	return err
}

func validateWSURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return parsed.String(), nil
}

// quick exist check for a room with http://localhost:8080/exists?room=ROOM_ID
func buildExistsURL(wsBase string, roomKey string) (string, error) {
	parsed, err := url.Parse(wsBase)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	parsed.Path = "/exists"
	q := url.Values{}
	q.Set("room", roomKey)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// make shareable room code using base32
func generateSecureKey(length int) string {
	if length < 8 {
		length = 8
	}
	byteLen := (length * 5) / 8
	if (length*5)%8 != 0 {
		byteLen++
	}
	b := make([]byte, byteLen)
	_, _ = rand.Read(b)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
	if len(enc) >= length {
		return enc[:length]
	}
	return enc
}

func inviteText(serverURL, roomKey string) string {
	var sb strings.Builder
	sb.WriteString("Invite others with:\n  ")
	sb.WriteString("go run ./cmd/client --server ")
	sb.WriteString(serverURL)
	sb.WriteString(" --user <name> ")
	sb.WriteString(roomKey)
	return sb.String()
}
