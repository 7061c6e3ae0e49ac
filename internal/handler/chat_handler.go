package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	"github.com/noah-isme/socratic-tutor-api/internal/service"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
	"github.com/noah-isme/socratic-tutor-api/pkg/response"
)

type chatService interface {
	CreateConversation(ctx context.Context, req dto.CreateConversationRequest, actor *models.JWTClaims) (*dto.ConversationInfo, error)
	ListConversations(ctx context.Context, classID *string, page, pageSize int, actor *models.JWTClaims) ([]dto.ConversationInfo, *models.Pagination, error)
	ListClassStudentConversations(ctx context.Context, classID, studentID string, page, pageSize int, actor *models.JWTClaims) ([]dto.ConversationInfo, *models.Pagination, error)
	GetMessages(ctx context.Context, conversationID int64, actor *models.JWTClaims) (*dto.MessageListResponse, error)
	SendMessage(ctx context.Context, conversationID int64, req dto.SendMessageRequest, actor *models.JWTClaims) (*dto.SendMessageResponse, error)
	StreamMessage(ctx context.Context, conversationID int64, req dto.SendMessageRequest, actor *models.JWTClaims) (*service.TurnStream, error)
}

// ChatHandler exposes conversation and tutoring turn endpoints.
type ChatHandler struct {
	service chatService
	logger  *zap.Logger
}

// NewChatHandler builds a new handler.
func NewChatHandler(service chatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{service: service, logger: logger}
}

// CreateConversation godoc
// @Summary Open a tutoring conversation
// @Tags Chat
// @Accept json
// @Produce json
// @Param payload body dto.CreateConversationRequest true "Conversation payload"
// @Success 201 {object} response.Envelope
// @Router /conversations [post]
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conversation payload"))
		return
	}
	claims := claimsFromContext(c)
	info, err := h.service.CreateConversation(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, info)
}

// ListConversations godoc
// @Summary List own conversations
// @Tags Chat
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /conversations [get]
func (h *ChatHandler) ListConversations(c *gin.Context) {
	var classID *string
	if raw := c.Query("class_id"); raw != "" {
		classID = &raw
	}
	claims := claimsFromContext(c)
	items, pagination, err := h.service.ListConversations(c.Request.Context(), classID, queryInt(c, "page", 1), queryInt(c, "page_size", 20), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListClassStudentConversations godoc
// @Summary List a student's conversations within a class
// @Tags Chat
// @Produce json
// @Param classID path string true "Class ID"
// @Param studentID path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/classes/{classID}/students/{studentID}/conversations [get]
func (h *ChatHandler) ListClassStudentConversations(c *gin.Context) {
	claims := claimsFromContext(c)
	items, pagination, err := h.service.ListClassStudentConversations(
		c.Request.Context(),
		c.Param("classID"),
		c.Param("studentID"),
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
		claims,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetMessages godoc
// @Summary Fetch a conversation transcript
// @Tags Chat
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} response.Envelope
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID, err := pathConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	resp, err := h.service.GetMessages(c.Request.Context(), conversationID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// SendMessage godoc
// @Summary Send a tutoring turn
// @Tags Chat
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param payload body dto.SendMessageRequest true "Message payload"
// @Success 200 {object} response.Envelope
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	conversationID, err := pathConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	claims := claimsFromContext(c)
	resp, err := h.service.SendMessage(c.Request.Context(), conversationID, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// StreamMessage godoc
// @Summary Send a tutoring turn over SSE
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param id path int true "Conversation ID"
// @Param payload body dto.SendMessageRequest true "Message payload"
// @Router /conversations/{id}/messages/stream [post]
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	conversationID, err := pathConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	claims := claimsFromContext(c)
	stream, err := h.service.StreamMessage(c.Request.Context(), conversationID, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	flusher, _ := c.Writer.(http.Flusher)
	clientGone := c.Request.Context().Done()
	disconnected := false

	// The channel must be drained to completion so the producing goroutine
	// can settle the turn even after the client goes away.
	for event := range stream.Events() {
		if disconnected {
			continue
		}
		select {
		case <-clientGone:
			disconnected = true
			continue
		default:
		}
		if err := writeSSE(c.Writer, event); err != nil {
			h.logger.Debug("sse write failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
			disconnected = true
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event service.StreamEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event.Event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
		return err
	}
	return nil
}

func pathConversationID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid conversation id")
	}
	return id, nil
}
