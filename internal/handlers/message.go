package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chitchat-service/internal/repositories"
	"chitchat-service/internal/telemetry"
	"chitchat-service/internal/ws"
)

// MessageHandler manages message endpoints within a group.
type MessageHandler struct {
	groupRepo   repositories.GroupRepository
	messageRepo repositories.MessageRepository
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(groupRepo repositories.GroupRepository, messageRepo repositories.MessageRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		hub:         hub,
		audit:       audit,
	}
}

type replyContext struct {
	SenderName string `json:"sender_name"`
	Snippet    string `json:"snippet"`
}

// PostGroupMessage persists a message and pushes it to the room, excluding
// the originating connection: that connection already rendered the message
// optimistically, and a push back would duplicate it.
func (h *MessageHandler) PostGroupMessage(c *gin.Context) {
	groupID, userID, ok := h.requireMembership(c)
	if !ok {
		return
	}

	var req struct {
		Content      string        `json:"content" binding:"required"`
		ConnectionID string        `json:"connection_id"`
		ReplyTo      *replyContext `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := repositories.CreateMessageParams{
		GroupID:    groupID,
		SenderID:   userID,
		SenderName: c.GetString("userName"),
		Content:    req.Content,
	}
	if req.ReplyTo != nil {
		params.ReplyToSender = &req.ReplyTo.SenderName
		params.ReplyToSnippet = &req.ReplyTo.Snippet
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), params)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.Publish(groupID, msg, req.ConnectionID)
	h.emitAudit(c, "INFO", "Group message sent")
	c.JSON(http.StatusCreated, msg)
}

// GetGroupMessages returns the group's messages in creation order, minus
// those the caller soft-deleted.
func (h *MessageHandler) GetGroupMessages(c *gin.Context) {
	groupID, userID, ok := h.requireMembership(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListGroupMessagesForUser(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type forwardResult struct {
	GroupID   int    `json:"group_id"`
	OK        bool   `json:"ok"`
	MessageID int    `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ForwardMessage copies a message into each target group as a new message
// authored by the caller, stamped with its provenance. Targets are handled
// independently: one failing does not roll back the others.
func (h *MessageHandler) ForwardMessage(c *gin.Context) {
	groupID, messageID, ok := parseGroupMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.checkMembership(c, groupID, userID) {
		return
	}

	var req struct {
		TargetGroupIDs []int `json:"target_group_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			h.emitAudit(c, "ERROR", "message not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if source.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to group"})
		return
	}

	sourceGroup, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	sourceMessageID := int64(source.ID)
	results := make([]forwardResult, 0, len(req.TargetGroupIDs))
	for _, targetID := range req.TargetGroupIDs {
		member, err := h.groupRepo.IsMember(c.Request.Context(), targetID, userID)
		if err != nil {
			results = append(results, forwardResult{GroupID: targetID, Error: "membership check failed"})
			continue
		}
		if !member {
			results = append(results, forwardResult{GroupID: targetID, Error: "not a member"})
			continue
		}

		senderName := source.SenderName
		groupName := sourceGroup.Name
		msg, err := h.messageRepo.CreateMessage(c.Request.Context(), repositories.CreateMessageParams{
			GroupID:                targetID,
			SenderID:               userID,
			SenderName:             c.GetString("userName"),
			Content:                source.Content,
			ForwardedFromSender:    &senderName,
			ForwardedFromGroup:     &groupName,
			ForwardedFromMessageID: &sourceMessageID,
		})
		if err != nil {
			results = append(results, forwardResult{GroupID: targetID, Error: "failed to store message"})
			continue
		}

		h.hub.Publish(targetID, msg, "")
		results = append(results, forwardResult{GroupID: targetID, OK: true, MessageID: msg.ID})
	}

	h.emitAudit(c, "INFO", "Group message forwarded")
	c.JSON(http.StatusMultiStatus, gin.H{"results": results})
}

// DeleteGroupMessageForMe hides a message from the caller only. Nothing is
// broadcast: other participants keep their view unchanged.
func (h *MessageHandler) DeleteGroupMessageForMe(c *gin.Context) {
	groupID, messageID, ok := parseGroupMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.checkMembership(c, groupID, userID) {
		return
	}

	if err := h.messageRepo.AddDeletedFor(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			h.emitAudit(c, "ERROR", "message not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete"})
		return
	}

	h.emitAudit(c, "INFO", "Group message deleted for user")
	c.Status(http.StatusNoContent)
}

// MarkMessageSeen flags a message as seen.
func (h *MessageHandler) MarkMessageSeen(c *gin.Context) {
	groupID, messageID, ok := parseGroupMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.checkMembership(c, groupID, userID) {
		return
	}

	if err := h.messageRepo.MarkSeen(c.Request.Context(), messageID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark seen"})
		return
	}

	c.Status(http.StatusNoContent)
}

// requireMembership parses the group id and rejects non-members, returning
// the group id and caller id when the caller may proceed.
func (h *MessageHandler) requireMembership(c *gin.Context) (int, int, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, 0, false
	}

	userID := c.GetInt("userID")
	if !h.checkMembership(c, groupID, userID) {
		return 0, 0, false
	}
	return groupID, userID, true
}

func (h *MessageHandler) checkMembership(c *gin.Context, groupID, userID int) bool {
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func parseGroupMessageIDs(c *gin.Context) (int, int, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, 0, false
	}
	msgID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, 0, false
	}
	return groupID, msgID, true
}
