package ui

import (
	"fmt"
	"strings"
)

// CommandKind identifies what a line typed into the input field asks for.
type CommandKind int

const (
	// Say broadcasts the line to the channel.
	Say CommandKind = iota
	// Msg sends text to a single peer.
	Msg
	// Peers lists the membership view.
	Peers
	// Whoami shows this instance's identifiers.
	Whoami
	// Alias defines an input alias.
	Alias
	// Unalias removes an input alias.
	Unalias
	// Aliases lists the input aliases.
	Aliases
	// Help lists the commands.
	Help
	// Quit leaves the channel and exits.
	Quit
)

// Command is a parsed input line.
type Command struct {
	Kind   CommandKind
	Target string
	Text   string
}

// HelpText lists the commands understood by ParseCommand.
const HelpText = "commands: /msg <peer> <text>, /peers, /whoami, /alias <name> <expansion>, /unalias <name>, /aliases, /help, /quit (anything else is broadcast)"

// ParseCommand turns an input line into a Command. Blank lines are an error.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("empty input")
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: Say, Text: line}, nil
	}
	parts := strings.Fields(line)
	switch parts[0] {
	case "/msg":
		if len(parts) < 3 {
			return Command{}, fmt.Errorf("usage: /msg <peer> <text>")
		}
		return Command{Kind: Msg, Target: parts[1], Text: rest(line, 2)}, nil
	case "/alias":
		if len(parts) < 3 {
			return Command{}, fmt.Errorf("usage: /alias <name> <expansion>")
		}
		return Command{Kind: Alias, Target: parts[1], Text: rest(line, 2)}, nil
	case "/unalias":
		if len(parts) != 2 {
			return Command{}, fmt.Errorf("usage: /unalias <name>")
		}
		return Command{Kind: Unalias, Target: parts[1]}, nil
	case "/aliases":
		return Command{Kind: Aliases}, nil
	case "/peers":
		return Command{Kind: Peers}, nil
	case "/whoami":
		return Command{Kind: Whoami}, nil
	case "/help":
		return Command{Kind: Help}, nil
	case "/quit", "/exit":
		return Command{Kind: Quit}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %s", parts[0])
	}
}

// rest returns line without its first n fields, inner spacing preserved.
func rest(line string, n int) string {
	for j := 0; j < n; j++ {
		line = strings.TrimLeft(line, " \t")
		i := strings.IndexAny(line, " \t")
		if i < 0 {
			return ""
		}
		line = line[i:]
	}
	return strings.TrimSpace(line)
}
