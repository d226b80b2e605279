package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"hello there", Command{Kind: Say, Text: "hello there"}},
		{"  padded  ", Command{Kind: Say, Text: "padded"}},
		{"/msg bob hi  you", Command{Kind: Msg, Target: "bob", Text: "hi  you"}},
		{"/alias /w /msg", Command{Kind: Alias, Target: "/w", Text: "/msg"}},
		{"/alias /hi hello  there", Command{Kind: Alias, Target: "/hi", Text: "hello  there"}},
		{"/unalias /w", Command{Kind: Unalias, Target: "/w"}},
		{"/aliases", Command{Kind: Aliases}},
		{"/peers", Command{Kind: Peers}},
		{"/whoami", Command{Kind: Whoami}},
		{"/help", Command{Kind: Help}},
		{"/quit", Command{Kind: Quit}},
		{"/exit", Command{Kind: Quit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{"", "   ", "/msg", "/msg bob", "/dance", "/alias x", "/unalias", "/unalias a b"} {
		_, err := ParseCommand(line)
		assert.Error(t, err, line)
	}
}
