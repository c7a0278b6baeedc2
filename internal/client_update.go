package internal

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		// Any mode should respect Ctrl+C so the user can bail out quickly.
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeConn("client quit")
			return model, tea.Quit
		}
		switch model.mode {
		case modeMenu:
			return model.updateMenu(typedMessage)
		case modeNamePrompt:
			return model.updateNamePrompt(typedMessage)
		case modeJoinPrompt:
			return model.updateJoinPrompt(typedMessage)
		case modeChat:
			return model.updateChat(typedMessage)
		}

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.connGen++
		model.isConnected = true
		model.connectionError = nil
		return model, model.readOnceCmd()

	case historyMsg:
		model.lines = model.lines[:0]
		for _, stored := range typedMessage {
			model.lines = append(model.lines, chatLine{User: stored.Username, Text: stored.Text, Timestamp: stored.DisplayTime})
		}
		model.addLocalNotice(fmt.Sprintf("You joined %s.", model.roomKey))
		return model, model.readOnceCmd()

	case incomingMsg:
		model.lines = append(model.lines, chatLine{User: typedMessage.User, Text: typedMessage.Text, Timestamp: typedMessage.Timestamp})
		delete(model.typingUsers, typedMessage.User)
		return model, model.readOnceCmd()

	case typingMsg:
		model.typingUsers[string(typedMessage)] = model.now()
		return model, tea.Batch(model.readOnceCmd(), tea.Tick(typingShowFor, func(_ time.Time) tea.Msg {
			return typingExpiredMsg{}
		}))

	case typingExpiredMsg:
		model.typingNames()
		return model, nil

	case errorMsg:
		model.connectionError = typedMessage
		return model, nil

	case connLostMsg:
		if typedMessage.gen != model.connGen || model.websocketConn == nil {
			return model, nil
		}
		model.connectionError = typedMessage.err
		model.isConnected = false
		model.websocketConn = nil
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case existsMsg:
		if typedMessage.err != nil {
			model.addLocalNotice(fmt.Sprintf("Error checking room: %v", typedMessage.err))
			return model, nil
		}
		if !typedMessage.exists {
			model.addLocalNotice("Room not found. Try again or create a room.")
			return model, nil
		}
		return model, model.enterChat(typedMessage.key)
	}
	return model, nil
}

func (model *TUIModel) updateMenu(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "1", "j", "J":
		return model, model.promptName(actionJoin)
	case "2", "c", "C":
		return model, model.promptName(actionCreate)
	case "q", "Q", "3", "esc":
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			model.addLocalNotice("Display name cannot be empty.")
			return model, nil
		}
		if len([]rune(trimmed)) > maxUsernameLength {
			model.addLocalNotice(fmt.Sprintf("Display name must be at most %d characters.", maxUsernameLength))
			return model, nil
		}
		model.username = trimmed
		model.textInput.SetValue("")
		nextAction := model.pendingAction
		model.pendingAction = actionNone
		switch nextAction {
		case actionJoin:
			model.mode = modeJoinPrompt
			model.textInput.Placeholder = "Enter room name…"
			model.textInput.Prompt = "room> "
			return model, model.textInput.Focus()
		case actionCreate:
			key := generateSecureKey(12)
			model.lines = model.lines[:0]
			model.addLocalNotice(inviteText(model.serverURL, key))
			return model, model.enterChat(key)
		default:
			model.backToMenu()
			return model, nil
		}
	case tea.KeyEsc:
		model.backToMenu()
		return model, nil
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateJoinPrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.backToMenu()
		return model, nil
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			return model, nil
		}
		// Before we try to dial the websocket, hit the lightweight HTTP probe.
		return model, model.existsCmd(trimmed)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.leaveChat()
		return model, nil
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if strings.HasPrefix(trimmed, "/") {
			model.textInput.SetValue("")
			return model.runCommand(trimmed)
		}
		if trimmed == "" || !model.isConnected {
			return model, nil
		}
		model.textInput.SetValue("")
		return model, model.sendCmd(EventChatMessage, trimmed)
	}

	before := model.textInput.Value()
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	if model.textInput.Value() != before && model.isConnected {
		now := model.now()
		if now.Sub(model.lastTypingSent) >= typingSendInterval {
			model.lastTypingSent = now
			return model, tea.Batch(cmd, model.sendCmd(EventTyping, nil))
		}
	}
	return model, cmd
}

// runCommand handles the slash commands available in the chat view.
func (model *TUIModel) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		model.closeConn("client quit")
		return model, tea.Quit
	case "/leave":
		model.leaveChat()
		return model, nil
	case "/join":
		if len(fields) < 2 {
			model.addLocalNotice("Usage: /join ROOM")
			return model, nil
		}
		room := strings.Join(fields[1:], " ")
		if len([]rune(room)) > maxRoomLength {
			model.addLocalNotice(fmt.Sprintf("Room names must be at most %d characters.", maxRoomLength))
			return model, nil
		}
		model.roomKey = room
		model.lines = model.lines[:0]
		model.typingUsers = make(map[string]time.Time)
		if !model.isConnected {
			return model, nil
		}
		return model, model.sendCmd(EventJoinRoom, JoinRequest{Username: model.username, Room: room})
	}
	model.addLocalNotice(fmt.Sprintf("Unknown command %s. Try /join ROOM, /leave or /quit.", fields[0]))
	return model, nil
}

func (model *TUIModel) promptName(action actionType) tea.Cmd {
	model.pendingAction = action
	model.mode = modeNamePrompt
	model.textInput.SetValue(model.username)
	model.textInput.Placeholder = "Enter display name…"
	model.textInput.Prompt = "name> "
	return model.textInput.Focus()
}

func (model *TUIModel) enterChat(room string) tea.Cmd {
	model.roomKey = room
	model.mode = modeChat
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "
	return tea.Batch(model.textInput.Focus(), model.connectCmd())
}

func (model *TUIModel) leaveChat() {
	model.closeConn("left room")
	model.websocketConn = nil
	model.isConnected = false
	model.connectionError = nil
	model.roomKey = ""
	model.lines = model.lines[:0]
	model.typingUsers = make(map[string]time.Time)
	model.backToMenu()
}

func (model *TUIModel) backToMenu() {
	model.pendingAction = actionNone
	model.mode = modeMenu
	model.textInput.SetValue("")
	model.textInput.Blur()
	model.textInput.Placeholder = ""
	model.textInput.Prompt = ""
}
