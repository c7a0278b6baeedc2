package internal

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	typingSendInterval = 2 * time.Second
	typingShowFor      = 3 * time.Second

	// keeps typical frames well under the server's 8 KiB read limit
	maxInputLength = 2000
)

// chatLine is one rendered row of the chat log.
type chatLine struct {
	User      string
	Text      string
	Timestamp string
	// local lines come from the client itself, not the server
	Local bool
}

// tui model struct for all the components and modes
type TUIModel struct {
	textInput       textinput.Model
	lines           []chatLine
	serverURL       string
	roomKey         string
	username        string
	websocketConn   *websocket.Conn
	connGen         int
	writeMutex      sync.Mutex
	isConnected     bool
	connectionError error
	mode            appMode
	pendingAction   actionType
	typingUsers     map[string]time.Time
	lastTypingSent  time.Time
	now             func() time.Time
}

type appMode int

const (
	modeMenu appMode = iota
	modeNamePrompt
	modeJoinPrompt
	modeChat
)

type actionType int

const (
	actionNone actionType = iota
	actionJoin
	actionCreate
)

func NewTUIModel(serverURL, roomKey, username string) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = maxInputLength
	input.Focus()
	input.Prompt = "> "

	if username == "" {
		username = defaultUsername()
	}

	model := &TUIModel{
		textInput:   input,
		lines:       make([]chatLine, 0, 64),
		serverURL:   serverURL,
		roomKey:     roomKey,
		username:    username,
		typingUsers: make(map[string]time.Time),
		now:         time.Now,
	}
	if roomKey == "" {
		model.mode = modeMenu
		model.textInput.Blur()
		model.textInput.Prompt = ""
		model.textInput.Placeholder = ""
	} else {
		model.mode = modeChat
	}
	return model
}

// init user
func defaultUsername() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return model.connectCmd()
	}
	return nil
}

func (model *TUIModel) addLocalNotice(text string) {
	model.lines = append(model.lines, chatLine{
		User:      SystemUser,
		Text:      text,
		Timestamp: model.now().Format(displayTimeLayout),
		Local:     true,
	})
}

// typingNames returns who typed recently, dropping stale entries.
func (model *TUIModel) typingNames() []string {
	cutoff := model.now().Add(-typingShowFor)
	names := make([]string, 0, len(model.typingUsers))
	for name, at := range model.typingUsers {
		if at.Before(cutoff) {
			delete(model.typingUsers, name)
			continue
		}
		names = append(names, name)
	}
	return names
}
