package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/service"
)

type ConversationHandler struct {
	svc *service.ConversationService
}

func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type conversationResponse struct {
	Conversation *model.Conversation `json:"conversation"`
	Ticket       *model.Ticket       `json:"ticket,omitempty"`
}

// writeError maps domain errors onto status codes. Invalid transitions and
// lost write races are both 409: the record moved on, the client should
// re-fetch and retry the action if it still applies.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrConversationNotFound), errors.Is(err, errs.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrWriteConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	}
}

func conversationID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

type askQuestionRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
	Title   string `json:"title"`
	Text    string `json:"text" binding:"required"`
}

func (h *ConversationHandler) Ask(c *gin.Context) {
	var req askQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, err := h.svc.AskQuestion(c.Request.Context(), service.AskQuestionRequest{
		OwnerID: req.OwnerID,
		Title:   req.Title,
		Text:    req.Text,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversationResponse{Conversation: conv})
}

type followUpRequest struct {
	OwnerID  string `json:"owner_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
	Continue bool   `json:"continue"`
}

func (h *ConversationHandler) FollowUp(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req followUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, err := h.svc.AskQuestion(c.Request.Context(), service.AskQuestionRequest{
		OwnerID:        req.OwnerID,
		ConversationID: id,
		Text:           req.Text,
		Continue:       req.Continue,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if conv.ID != id {
		// Terminal conversation without continue: a fresh record was started.
		status = http.StatusCreated
	}
	c.JSON(status, conversationResponse{Conversation: conv})
}

type feedbackRequest struct {
	Useful *bool `json:"useful" binding:"required"`
}

func (h *ConversationHandler) Feedback(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, ticket, err := h.svc.GiveFeedback(c.Request.Context(), id, *req.Useful)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{Conversation: conv, Ticket: ticket})
}

type technicianReplyRequest struct {
	AssigneeID string `json:"assignee_id"`
	Text       string `json:"text" binding:"required"`
}

func (h *ConversationHandler) TechnicianReply(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req technicianReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, err := h.svc.TechnicianReply(c.Request.Context(), id, req.AssigneeID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{Conversation: conv})
}

type userReplyRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *ConversationHandler) UserReply(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req userReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, err := h.svc.UserReplyToTechnician(c.Request.Context(), id, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{Conversation: conv})
}

type resolveRequest struct {
	AssigneeID string `json:"assignee_id"`
	Text       string `json:"text"`
}

func (h *ConversationHandler) Resolve(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, ticket, err := h.svc.ResolveTicket(c.Request.Context(), id, req.AssigneeID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{Conversation: conv, Ticket: ticket})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, ticket, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{Conversation: conv, Ticket: ticket})
}

func (h *ConversationHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), c.Query("owner_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": items, "total": len(items)})
}

func (h *ConversationHandler) Purge(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	if err := h.svc.Purge(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) ListTickets(c *gin.Context) {
	items, err := h.svc.ListTickets(c.Request.Context(), model.TicketStatus(c.Query("status")), c.Query("assignee_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": items, "total": len(items)})
}
