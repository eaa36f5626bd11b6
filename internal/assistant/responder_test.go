package assistant_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chitchat-service/internal/assistant"
	"chitchat-service/internal/mocks"
	"chitchat-service/internal/models"
	"chitchat-service/internal/repositories"
	"chitchat-service/internal/ws"
)

func transcript(texts ...string) []assistant.ChatMessage {
	out := make([]assistant.ChatMessage, 0, len(texts))
	for _, text := range texts {
		out = append(out, assistant.ChatMessage{Role: "user", Name: "alice", Content: text})
	}
	return out
}

func TestHandleMentionNoMentionIsNoOp(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	outcome, err := responder.HandleMention(context.Background(), 7, transcript("just chatting"))

	require.NoError(t, err)
	require.False(t, outcome.Replied)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMentionSummaryWithoutDaysSendsUsageHint(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.GroupID == 7 && p.IsAI && p.SenderID == models.AssistantSenderID &&
			strings.Contains(p.Content, "summary 3")
	})).Return(models.Message{ID: 1, GroupID: 7, IsAI: true}, nil).Once()

	outcome, err := responder.HandleMention(context.Background(), 7, transcript("@ai summary"))

	require.NoError(t, err)
	require.True(t, outcome.Replied)
	messageRepo.AssertExpectations(t)
	// the help path never looks at the store window or the model
	messageRepo.AssertNotCalled(t, "ListMessagesSince", mock.Anything, mock.Anything, mock.Anything)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMentionSummaryEmptyWindow(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	messageRepo.On("ListMessagesSince", mock.Anything, 7, mock.Anything).Return([]models.Message{}, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.Content == "No messages found in the last 3 days."
	})).Return(models.Message{ID: 2, GroupID: 7, IsAI: true}, nil).Once()

	outcome, err := responder.HandleMention(context.Background(), 7, transcript("@ai summary 3"))

	require.NoError(t, err)
	require.True(t, outcome.Replied)
	messageRepo.AssertExpectations(t)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMentionSummaryFormatsWindow(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	window := []models.Message{
		{ID: 1, GroupID: 7, SenderID: 1, SenderName: "alice", Content: "shipped the release", CreatedAt: time.Now().Add(-time.Hour)},
		{ID: 2, GroupID: 7, SenderID: 2, SenderName: "bob", Content: "nice, closing the ticket", CreatedAt: time.Now()},
	}
	messageRepo.On("ListMessagesSince", mock.Anything, 7, mock.Anything).Return(window, nil).Once()
	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("The release shipped.", nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.Content == "Chat Summary (Last 2 days)\n\nThe release shipped.\n\nBased on 2 messages"
	})).Return(models.Message{ID: 3, GroupID: 7, IsAI: true}, nil).Once()

	outcome, err := responder.HandleMention(context.Background(), 7, transcript("@ai summary 2"))

	require.NoError(t, err)
	require.True(t, outcome.Replied)
	messageRepo.AssertExpectations(t)
	llm.AssertExpectations(t)
}

func TestHandleMentionReplyPersistsAssistantMessage(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("Noon works for everyone.", nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.SenderID == models.AssistantSenderID &&
			p.SenderName == models.AssistantSenderName &&
			p.IsAI && p.Content == "Noon works for everyone."
	})).Return(models.Message{ID: 4, GroupID: 7, IsAI: true, Content: "Noon works for everyone."}, nil).Once()

	outcome, err := responder.HandleMention(context.Background(), 7,
		transcript("when should we meet?", "@ai pick a time"))

	require.NoError(t, err)
	require.True(t, outcome.Replied)
	require.Equal(t, "Noon works for everyone.", outcome.Message.Content)
	messageRepo.AssertExpectations(t)
	llm.AssertExpectations(t)
}

func TestHandleMentionModelFailureStaysSilent(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()
	llm.On("Model").Return("gpt-4o-mini").Maybe()

	outcome, err := responder.HandleMention(context.Background(), 7, transcript("@ai hello"))

	require.NoError(t, err)
	require.False(t, outcome.Replied)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestHandleMentionFailureLogsModel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()
	llm.On("Model").Return("gpt-4o-mini")

	_, err := responder.HandleMention(context.Background(), 7, transcript("@ai hello"))

	require.NoError(t, err)
	require.Contains(t, buf.String(), `"model":"gpt-4o-mini"`)
	require.Contains(t, buf.String(), "assistant reply failed")
}

func TestHandleMentionNoResponseSentinelNeverPersisted(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)

	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("*no response*", nil).Once()
	llm.On("Model").Return("gpt-4o-mini").Maybe()

	outcome, err := responder.HandleMention(context.Background(), 7, transcript("@ai ok"))

	require.NoError(t, err)
	require.False(t, outcome.Replied)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}
