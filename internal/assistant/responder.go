package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chitchat-service/internal/models"
	"chitchat-service/internal/observability"
	"chitchat-service/internal/repositories"
	"chitchat-service/internal/ws"
)

// noResponseSentinel is what the model is instructed to emit when a mention
// does not warrant an answer. It is never persisted or broadcast.
const noResponseSentinel = "*no response*"

const replySystemPrompt = "You are the AI assistant of a group chat. You were mentioned with " +
	MentionToken + " in the newest message; answer that mention directly, using the preceding " +
	"messages only as context. Keep the reply short and conversational. If the mention does not " +
	"call for an answer, reply with exactly " + noResponseSentinel + " and nothing else."

const summarySystemPrompt = "You summarize group chat conversations. Produce a structured summary " +
	"covering the main topics discussed, decisions made, open action items, and the overall tone. " +
	"Be concise and do not invent content that is not in the transcript."

const summaryUsageHint = "To get a summary, tell me how many days to cover, " +
	"for example: \"" + MentionToken + " summary 3\" for the last 3 days."

// Responder runs the assistant side of a group conversation: it classifies
// the mention, gathers whatever context the command needs, calls the model,
// and delivers the answer to the room like any other message.
type Responder struct {
	messages repositories.MessageRepository
	hub      *ws.Hub
	llm      LLM

	// now is swapped in tests to pin summary windows.
	now func() time.Time
}

// NewResponder wires a Responder to the message store, the room hub and the
// language model.
func NewResponder(messages repositories.MessageRepository, hub *ws.Hub, llm LLM) *Responder {
	return &Responder{
		messages: messages,
		hub:      hub,
		llm:      llm,
		now:      time.Now,
	}
}

// Outcome reports what a mention produced. Replied is false both for
// non-mentions and for model failures, which stay silent in the room.
type Outcome struct {
	Replied bool
	Message *models.Message
}

// HandleMention processes the newest message of a group. transcript is the
// recent window of the conversation, oldest first, with the triggering
// message last. Model failures return a zero Outcome and a nil error: the
// room never sees an error message.
func (r *Responder) HandleMention(ctx context.Context, groupID int, transcript []ChatMessage) (Outcome, error) {
	if len(transcript) == 0 {
		return Outcome{}, nil
	}
	newest := transcript[len(transcript)-1].Content
	cmd := ParseCommand(newest)

	switch cmd.Kind {
	case CommandNone:
		return Outcome{}, nil

	case CommandSummaryHelp:
		observability.IncAssistantRequest("summary_help", "ok")
		return r.deliver(ctx, groupID, summaryUsageHint)

	case CommandSummary:
		return r.summarize(ctx, groupID, cmd.Days)

	default:
		return r.reply(ctx, groupID, transcript)
	}
}

func (r *Responder) reply(ctx context.Context, groupID int, transcript []ChatMessage) (Outcome, error) {
	if r.llm == nil {
		observability.IncAssistantRequest("reply", "disabled")
		return Outcome{}, nil
	}
	text, err := r.llm.Complete(ctx, replySystemPrompt, transcript)
	if failed(text, err) {
		slog.WarnContext(ctx, "assistant reply failed", "group_id", groupID, "model", r.llm.Model(), "error", err)
		observability.IncAssistantRequest("reply", "error")
		return Outcome{}, nil
	}
	observability.IncAssistantRequest("reply", "ok")
	return r.deliver(ctx, groupID, strings.TrimSpace(text))
}

func (r *Responder) summarize(ctx context.Context, groupID, days int) (Outcome, error) {
	since := r.now().AddDate(0, 0, -days)
	window, err := r.messages.ListMessagesSince(ctx, groupID, since)
	if err != nil {
		observability.IncAssistantRequest("summary", "error")
		return Outcome{}, fmt.Errorf("load summary window: %w", err)
	}

	if len(window) == 0 {
		observability.IncAssistantRequest("summary", "empty")
		return r.deliver(ctx, groupID, fmt.Sprintf("No messages found in the last %d days.", days))
	}

	if r.llm == nil {
		observability.IncAssistantRequest("summary", "disabled")
		return Outcome{}, nil
	}

	transcript := make([]ChatMessage, 0, len(window))
	for _, m := range window {
		role := "user"
		if m.IsAI {
			role = "assistant"
		}
		transcript = append(transcript, ChatMessage{Role: role, Name: m.SenderName, Content: m.Content})
	}

	text, err := r.llm.Complete(ctx, summarySystemPrompt, transcript)
	if failed(text, err) {
		slog.WarnContext(ctx, "assistant summary failed", "group_id", groupID, "days", days, "model", r.llm.Model(), "error", err)
		observability.IncAssistantRequest("summary", "error")
		return Outcome{}, nil
	}

	observability.IncAssistantRequest("summary", "ok")
	formatted := fmt.Sprintf("Chat Summary (Last %d days)\n\n%s\n\nBased on %d messages",
		days, strings.TrimSpace(text), len(window))
	return r.deliver(ctx, groupID, formatted)
}

// deliver persists the assistant message and pushes it to every connection
// in the room. Assistant messages exclude no origin connection.
func (r *Responder) deliver(ctx context.Context, groupID int, text string) (Outcome, error) {
	msg, err := r.messages.CreateMessage(ctx, repositories.CreateMessageParams{
		GroupID:    groupID,
		SenderID:   models.AssistantSenderID,
		SenderName: models.AssistantSenderName,
		Content:    text,
		IsAI:       true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("persist assistant message: %w", err)
	}
	r.hub.Publish(groupID, msg, "")
	return Outcome{Replied: true, Message: &msg}, nil
}

func failed(text string, err error) bool {
	if err != nil {
		return true
	}
	trimmed := strings.TrimSpace(text)
	return trimmed == "" || strings.EqualFold(trimmed, noResponseSentinel)
}
