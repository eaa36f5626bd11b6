package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chitchat-service/internal/mocks"
	"chitchat-service/internal/models"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Set("userName", "alice")
		c.Next()
	})
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups", handler.ListGroups)
	r.GET("/groups/:group_id", handler.GetGroup)
	return r
}

func TestCreateGroupSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewGroupHandler(groupRepo, messageRepo, nil)
	router := setupGroupRouter(handler)

	groupRepo.On("CreateGroup", mock.Anything, 1, "team", []int{2, 3}).Return(models.Group{ID: 5, Name: "team"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"team","member_ids":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestCreateGroupInvalidBody(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock), nil)
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListGroupsAnnotatesLastMessage(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewGroupHandler(groupRepo, messageRepo, nil)
	router := setupGroupRouter(handler)

	groupRepo.On("ListGroupsForUser", mock.Anything, 1).Return([]models.Group{{ID: 5, Name: "team"}, {ID: 6, Name: "empty"}}, nil).Once()
	last := &models.Message{ID: 10, GroupID: 5, SenderID: 2, Content: "latest"}
	messageRepo.On("LastMessageForUser", mock.Anything, 5, 1).Return(last, nil).Once()
	messageRepo.On("LastMessageForUser", mock.Anything, 6, 1).Return(nil, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Groups []models.GroupSummary `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 2)
	require.NotNil(t, resp.Groups[0].LastMessage)
	require.Equal(t, "latest", resp.Groups[0].LastMessage.Content)
	require.Nil(t, resp.Groups[1].LastMessage)
	messageRepo.AssertExpectations(t)
}

func TestGetGroupForbiddenForNonMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetGroupReturnsMembers(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	groupRepo.On("GetGroup", mock.Anything, 5).Return(models.Group{ID: 5, Name: "team"}, nil).Once()
	groupRepo.On("GetMembers", mock.Anything, 5).Return([]int{1, 2, 3}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.GroupSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []int{1, 2, 3}, resp.Members)
	groupRepo.AssertExpectations(t)
}
