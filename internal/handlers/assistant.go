package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chitchat-service/internal/assistant"
	"chitchat-service/internal/repositories"
	"chitchat-service/internal/telemetry"
)

// AssistantHandler exposes the assistant trigger endpoint. Clients call it
// shortly after sending a message that mentions the assistant; the reply, if
// any, arrives through the group's websocket room like any other message.
type AssistantHandler struct {
	groupRepo repositories.GroupRepository
	responder *assistant.Responder
	audit     *telemetry.AuditEmitter
}

// NewAssistantHandler constructs an AssistantHandler.
func NewAssistantHandler(groupRepo repositories.GroupRepository, responder *assistant.Responder, audit *telemetry.AuditEmitter) *AssistantHandler {
	return &AssistantHandler{
		groupRepo: groupRepo,
		responder: responder,
		audit:     audit,
	}
}

// Trigger handles POST /groups/:group_id/assistant. The body carries the
// recent conversation window, oldest first, with the triggering message
// last. A silent outcome (no mention, or model failure) is 204: the room
// never sees an error message from the assistant.
func (h *AssistantHandler) Trigger(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	var req struct {
		Transcript []assistant.ChatMessage `json:"transcript" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.responder.HandleMention(c.Request.Context(), groupID, req.Transcript)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant failed"})
		return
	}
	if !outcome.Replied {
		c.Status(http.StatusNoContent)
		return
	}

	h.emitAudit(c, "INFO", "Assistant replied")
	c.JSON(http.StatusCreated, outcome.Message)
}

func (h *AssistantHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
