package assistant

import (
	"regexp"
	"strconv"
	"strings"
)

// MentionToken is the substring, matched case-insensitively anywhere in a
// message, that addresses the assistant.
const MentionToken = "@ai"

// CommandKind classifies what an assistant mention asks for.
type CommandKind int

const (
	// CommandNone means the text does not mention the assistant at all.
	CommandNone CommandKind = iota
	// CommandReply is a freeform mention answered from recent context.
	CommandReply
	// CommandSummaryHelp is the summary keyword without a day count.
	CommandSummaryHelp
	// CommandSummary requests a summary over a trailing day window.
	CommandSummary
)

// Command is a parsed assistant mention.
type Command struct {
	Kind CommandKind
	Days int
}

var summaryPattern = regexp.MustCompile(`(?i)` + MentionToken + `\s+summary(?:\s+(\d+))?`)

// ParseCommand classifies message text. The summary form wins over the
// freeform form whenever the summary keyword follows the mention.
func ParseCommand(text string) Command {
	if !strings.Contains(strings.ToLower(text), MentionToken) {
		return Command{Kind: CommandNone}
	}
	if m := summaryPattern.FindStringSubmatch(text); m != nil {
		if m[1] == "" {
			return Command{Kind: CommandSummaryHelp}
		}
		days, err := strconv.Atoi(m[1])
		if err != nil || days < 1 {
			return Command{Kind: CommandSummaryHelp}
		}
		return Command{Kind: CommandSummary, Days: days}
	}
	return Command{Kind: CommandReply}
}
