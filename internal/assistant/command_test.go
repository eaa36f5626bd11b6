package assistant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Command
	}{
		{"no mention", "let's meet at noon", Command{Kind: CommandNone}},
		{"freeform mention", "@ai what time works for everyone?", Command{Kind: CommandReply}},
		{"mention mid sentence", "hey @AI can you help", Command{Kind: CommandReply}},
		{"uppercase mention", "@AI SUMMARY 5", Command{Kind: CommandSummary, Days: 5}},
		{"summary with days", "@ai summary 3", Command{Kind: CommandSummary, Days: 3}},
		{"summary no days", "@ai summary", Command{Kind: CommandSummaryHelp}},
		{"summary trailing words", "@ai summary please", Command{Kind: CommandSummaryHelp}},
		{"summary zero days", "@ai summary 0", Command{Kind: CommandSummaryHelp}},
		{"summary with context around", "could you @ai summary 7 thanks", Command{Kind: CommandSummary, Days: 7}},
		{"word containing token", "email me at ai@example.com", Command{Kind: CommandNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParseCommand(tt.text))
		})
	}
}
