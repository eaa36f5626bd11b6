package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chitchat-service/internal/assistant"
	"chitchat-service/internal/mocks"
	"chitchat-service/internal/models"
	"chitchat-service/internal/ws"
)

func setupAssistantRouter(groupRepo *mocks.GroupRepositoryMock, messageRepo *mocks.MessageRepositoryMock, llm *mocks.LLMMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	responder := assistant.NewResponder(messageRepo, ws.NewHub(), llm)
	handler := NewAssistantHandler(groupRepo, responder, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Set("userName", "alice")
		c.Next()
	})
	r.POST("/groups/:group_id/assistant", handler.Trigger)
	return r
}

func TestAssistantTriggerNoMentionIsSilent(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	router := setupAssistantRouter(groupRepo, messageRepo, llm)

	groupRepo.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()

	body := `{"transcript":[{"role":"user","name":"alice","content":"see you tomorrow"}]}`
	req := httptest.NewRequest(http.MethodPost, "/groups/7/assistant", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestAssistantTriggerReplyReturnsMessage(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	router := setupAssistantRouter(groupRepo, messageRepo, llm)

	groupRepo.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("Here you go.", nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.Anything).
		Return(models.Message{ID: 5, GroupID: 7, IsAI: true, Content: "Here you go."}, nil).Once()

	body := `{"transcript":[{"role":"user","name":"alice","content":"@ai help me out"}]}`
	req := httptest.NewRequest(http.MethodPost, "/groups/7/assistant", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "Here you go.")
}

func TestAssistantTriggerModelFailureIsSilent(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	llm := new(mocks.LLMMock)
	router := setupAssistantRouter(groupRepo, messageRepo, llm)

	groupRepo.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("deadline exceeded")).Once()
	llm.On("Model").Return("gpt-4o-mini").Maybe()

	body := `{"transcript":[{"role":"user","name":"alice","content":"@ai hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/groups/7/assistant", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestAssistantTriggerForbiddenForNonMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	router := setupAssistantRouter(groupRepo, new(mocks.MessageRepositoryMock), new(mocks.LLMMock))

	groupRepo.On("IsMember", mock.Anything, 7, 1).Return(false, nil).Once()

	body := `{"transcript":[{"role":"user","content":"@ai hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/groups/7/assistant", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssistantTriggerEmptyTranscriptRejected(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	router := setupAssistantRouter(groupRepo, new(mocks.MessageRepositoryMock), new(mocks.LLMMock))

	groupRepo.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/7/assistant", bytes.NewBufferString(`{"transcript":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
