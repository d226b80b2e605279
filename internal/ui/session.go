package ui

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/node"
)

// ChatType is the message type carrying chat lines.
const ChatType = "chat"

// ChatPayload is the payload of a ChatType message.
type ChatPayload struct {
	Text string `json:"text"`
}

// View is what a Session draws on.
type View interface {
	AddMessage(msg string)
	AddLogMessage(msg string)
	SetPeers(peers []string)
}

// AliasStore expands and edits input aliases.
type AliasStore interface {
	Expand(input string) string
	AddAlias(name, expansion string) error
	RemoveAlias(name string) error
	Names() []string
}

// Session connects a node to a View: it renders membership changes and
// chat traffic and executes what the user types.
type Session struct {
	node    *node.Node
	view    View
	quit    func()
	logger  *zap.Logger
	aliases AliasStore
	cancel  []func()
}

// NewSession subscribes to n and renders onto view. quit is called for
// /quit after the node has been closed.
func NewSession(n *node.Node, view View, quit func(), logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{node: n, view: view, quit: quit, logger: logger}
	s.cancel = append(s.cancel,
		n.OnMessage(s.message),
		n.OnPeerConnected(func(id string) {
			view.AddLogMessage(fmt.Sprintf("%s joined", id))
			view.SetPeers(n.Peers())
		}),
		n.OnPeerDisconnected(func(id string) {
			view.AddLogMessage(fmt.Sprintf("%s left", id))
			view.SetPeers(n.Peers())
		}),
		n.OnError(func(err error) {
			view.AddLogMessage("error: " + err.Error())
		}),
	)
	view.SetPeers(n.Peers())
	view.AddLogMessage(fmt.Sprintf("joined %s as %s", n.ChannelName(), n.ID()))
	return s
}

func (s *Session) message(m node.Message) {
	if m.Type != ChatType {
		s.view.AddLogMessage(fmt.Sprintf("%s sent %q", m.From, m.Type))
		return
	}
	var p ChatPayload
	if err := m.Decode(&p); err != nil {
		s.logger.Debug("undecodable chat payload", zap.String("from", m.From), zap.Error(err))
		return
	}
	if m.Broadcast() {
		s.view.AddMessage(fmt.Sprintf("<%s> %s", m.From, p.Text))
		return
	}
	s.view.AddMessage(fmt.Sprintf("*%s* %s", m.From, p.Text))
}

// SetAliases enables alias expansion of input lines.
func (s *Session) SetAliases(a AliasStore) {
	s.aliases = a
}

// Handle executes one line of user input.
func (s *Session) Handle(line string) {
	if s.aliases != nil {
		line = s.aliases.Expand(line)
	}
	cmd, err := ParseCommand(line)
	if err != nil {
		if strings.TrimSpace(line) != "" {
			s.view.AddMessage(err.Error())
		}
		return
	}

	switch cmd.Kind {
	case Say:
		if err := s.node.Broadcast(ChatType, ChatPayload{Text: cmd.Text}); err != nil {
			s.view.AddMessage("send failed: " + err.Error())
			return
		}
		s.view.AddMessage(fmt.Sprintf("<%s> %s", s.node.ID(), cmd.Text))
	case Msg:
		err := s.node.Send(cmd.Target, ChatType, ChatPayload{Text: cmd.Text})
		switch {
		case errors.Is(err, node.ErrPeerNotFound):
			s.view.AddMessage(fmt.Sprintf("no such peer: %s", cmd.Target))
		case err != nil:
			s.view.AddMessage("send failed: " + err.Error())
		default:
			s.view.AddMessage(fmt.Sprintf("-> *%s* %s", cmd.Target, cmd.Text))
		}
	case Peers:
		peers := s.node.Peers()
		s.view.SetPeers(peers)
		if len(peers) == 0 {
			s.view.AddMessage("no peers")
			return
		}
		s.view.AddMessage("peers: " + strings.Join(peers, ", "))
	case Whoami:
		s.view.AddMessage(fmt.Sprintf("id %s, internal id %s, channel %s",
			s.node.ID(), s.node.InternalID(), s.node.ChannelName()))
	case Alias, Unalias, Aliases:
		s.editAliases(cmd)
	case Help:
		s.view.AddMessage(HelpText)
	case Quit:
		s.Close()
		if err := s.node.Close(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
		if s.quit != nil {
			s.quit()
		}
	}
}

func (s *Session) editAliases(cmd Command) {
	if s.aliases == nil {
		s.view.AddMessage("aliases are not enabled")
		return
	}
	var err error
	switch cmd.Kind {
	case Alias:
		err = s.aliases.AddAlias(cmd.Target, cmd.Text)
	case Unalias:
		err = s.aliases.RemoveAlias(cmd.Target)
	case Aliases:
		names := s.aliases.Names()
		if len(names) == 0 {
			s.view.AddMessage("no aliases")
			return
		}
		s.view.AddMessage("aliases: " + strings.Join(names, "; "))
		return
	}
	if err != nil {
		s.view.AddMessage("alias: " + err.Error())
		return
	}
	s.view.AddMessage("ok")
}

// Close stops rendering node events.
func (s *Session) Close() {
	for _, cancel := range s.cancel {
		cancel()
	}
	s.cancel = nil
}
