// Package ui is the terminal chat front end: a tview layout plus a Session
// that binds it to a presence node.
package ui

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	maxLogLines     = 100
	maxHistoryLines = 100
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// ChatUI is a single-channel chat window with a peer list and a log pane.
// Its View methods may be called from any goroutine.
type ChatUI struct {
	app      *tview.Application
	chatView *tview.TextView
	peerList *tview.TextView
	logView  *tview.TextView
	input    *tview.InputField

	historyFile string

	mu        sync.Mutex
	logBuffer []string
}

// NewChatUI builds the layout. Chat lines are appended to
// historyDir/<channel>.log and the tail of that file is shown on start; an
// empty historyDir disables history.
func NewChatUI(channel, historyDir string) *ChatUI {
	app := tview.NewApplication()

	chatView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	chatView.SetBorder(true).SetTitle(fmt.Sprintf("Chat (%s)", channel))

	peerList := tview.NewTextView().
		SetDynamicColors(true)
	peerList.SetBorder(true).SetTitle("Peers")

	logView := tview.NewTextView().
		SetDynamicColors(true)
	logView.SetBorder(true).SetTitle("Log")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0)
	input.SetBorder(true)

	rightColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(chatView, 0, 3, false).
		AddItem(logView, 8, 1, false)

	mainFlex := tview.NewFlex().
		AddItem(peerList, 25, 1, false).
		AddItem(rightColumn, 0, 3, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(mainFlex, 0, 1, false).
		AddItem(input, 3, 0, true)

	c := &ChatUI{
		app:      app,
		chatView: chatView,
		peerList: peerList,
		logView:  logView,
		input:    input,
	}
	if historyDir != "" {
		c.historyFile = filepath.Join(historyDir, historyName(channel))
		c.loadHistory()
	}

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyPgUp, tcell.KeyPgDn:
			// Let the chat pane scroll while the input keeps focus.
			handler := chatView.InputHandler()
			handler(event, func(tview.Primitive) {})
			return nil
		}
		return event
	})

	app.SetRoot(layout, true)
	return c
}

// historyName maps a channel to a safe file name.
func historyName(channel string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, channel)
	return name + ".log"
}

// AddMessage appends a line to the chat pane and the history file.
func (c *ChatUI) AddMessage(msg string) {
	clean := ansiEscape.ReplaceAllString(msg, "")
	stamp := time.Now().Format("15:04:05")
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatView, "[gray]%s[-] %s\n", stamp, tview.Escape(clean))
		c.chatView.ScrollToEnd()
	})
	c.saveHistory(clean)
}

// AddLogMessage appends a line to the log pane, keeping the last lines only.
func (c *ChatUI) AddLogMessage(msg string) {
	clean := ansiEscape.ReplaceAllString(msg, "")
	c.mu.Lock()
	c.logBuffer = append(c.logBuffer, clean)
	if len(c.logBuffer) > maxLogLines {
		c.logBuffer = c.logBuffer[len(c.logBuffer)-maxLogLines:]
	}
	text := strings.Join(c.logBuffer, "\n")
	c.mu.Unlock()

	c.app.QueueUpdateDraw(func() {
		c.logView.SetText(tview.Escape(text))
		c.logView.ScrollToEnd()
	})
}

// SetPeers replaces the peer list.
func (c *ChatUI) SetPeers(peers []string) {
	text := strings.Join(peers, "\n")
	c.app.QueueUpdateDraw(func() {
		c.peerList.SetText(tview.Escape(text))
		c.peerList.SetTitle(fmt.Sprintf("Peers (%d)", len(peers)))
	})
}

// SetInputHandler sets the function called with each entered line. It runs
// off the UI goroutine so it may block.
func (c *ChatUI) SetInputHandler(handler func(string)) {
	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}
		c.input.SetText("")
		go handler(text)
	})
}

// Run starts the application and blocks until Stop.
func (c *ChatUI) Run() error {
	return c.app.Run()
}

// Stop ends Run.
func (c *ChatUI) Stop() {
	c.app.Stop()
}

func (c *ChatUI) saveHistory(line string) {
	if c.historyFile == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.historyFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), line)
}

func (c *ChatUI) loadHistory() {
	lines := readTail(c.historyFile, maxHistoryLines)
	for _, line := range lines {
		fmt.Fprintf(c.chatView, "[gray]%s[-]\n", tview.Escape(line))
	}
}

// readTail returns up to n last lines of path; a missing file has none.
func readTail(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
