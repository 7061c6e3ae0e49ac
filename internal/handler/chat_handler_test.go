package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/middleware"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	"github.com/noah-isme/socratic-tutor-api/internal/service"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

type chatServiceMock struct {
	sendResp   *dto.SendMessageResponse
	sendErr    error
	streamFunc func() *service.TurnStream
}

func (m *chatServiceMock) CreateConversation(ctx context.Context, req dto.CreateConversationRequest, actor *models.JWTClaims) (*dto.ConversationInfo, error) {
	return &dto.ConversationInfo{ID: 1, ClassID: req.ClassID, StudentID: actor.UserID}, nil
}

func (m *chatServiceMock) ListConversations(ctx context.Context, classID *string, page, pageSize int, actor *models.JWTClaims) ([]dto.ConversationInfo, *models.Pagination, error) {
	return []dto.ConversationInfo{}, &models.Pagination{Page: page, PageSize: pageSize}, nil
}

func (m *chatServiceMock) ListClassStudentConversations(ctx context.Context, classID, studentID string, page, pageSize int, actor *models.JWTClaims) ([]dto.ConversationInfo, *models.Pagination, error) {
	return []dto.ConversationInfo{}, &models.Pagination{Page: page, PageSize: pageSize}, nil
}

func (m *chatServiceMock) GetMessages(ctx context.Context, conversationID int64, actor *models.JWTClaims) (*dto.MessageListResponse, error) {
	return &dto.MessageListResponse{ConversationID: conversationID}, nil
}

func (m *chatServiceMock) SendMessage(ctx context.Context, conversationID int64, req dto.SendMessageRequest, actor *models.JWTClaims) (*dto.SendMessageResponse, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return m.sendResp, nil
}

func (m *chatServiceMock) StreamMessage(ctx context.Context, conversationID int64, req dto.SendMessageRequest, actor *models.JWTClaims) (*service.TurnStream, error) {
	return m.streamFunc(), nil
}

func studentContext(t *testing.T, method, target string, body []byte) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	return w, c
}

func TestChatHandlerSendMessageReturnsEnvelope(t *testing.T) {
	mock := &chatServiceMock{sendResp: &dto.SendMessageResponse{
		UserMessage:      dto.MessageInfo{ID: 1, Role: "user", Content: "问题"},
		AssistantMessage: dto.MessageInfo{ID: 2, Role: "assistant", Content: "回答"},
		PolicyFlags:      models.PolicyFlags{"provider": "openai"},
	}}
	handler := NewChatHandler(mock, nil)

	body, _ := json.Marshal(dto.SendMessageRequest{Content: "问题"})
	w, c := studentContext(t, http.MethodPost, "/conversations/3/messages", body)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	handler.SendMessage(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.SendMessageResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, int64(2), envelope.Data.AssistantMessage.ID)
	assert.Equal(t, "回答", envelope.Data.AssistantMessage.Content)
}

func TestChatHandlerSendMessageInvalidID(t *testing.T) {
	handler := NewChatHandler(&chatServiceMock{}, nil)

	body, _ := json.Marshal(dto.SendMessageRequest{Content: "问题"})
	w, c := studentContext(t, http.MethodPost, "/conversations/abc/messages", body)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.SendMessage(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandlerSendMessageServiceError(t *testing.T) {
	handler := NewChatHandler(&chatServiceMock{sendErr: appErrors.Clone(appErrors.ErrForbidden, "not your conversation")}, nil)

	body, _ := json.Marshal(dto.SendMessageRequest{Content: "问题"})
	w, c := studentContext(t, http.MethodPost, "/conversations/3/messages", body)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	handler.SendMessage(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatHandlerStreamMessageWritesSSEFrames(t *testing.T) {
	stream := service.NewTurnStream(8)
	stream.Publish(service.StreamEvent{Event: "meta", Payload: map[string]interface{}{"type": "meta"}})
	stream.Publish(service.StreamEvent{Event: "delta", Payload: map[string]interface{}{"type": "delta", "delta": "你"}})
	stream.Publish(service.StreamEvent{Event: "done", Payload: map[string]interface{}{"type": "done"}})
	stream.Close()
	handler := NewChatHandler(&chatServiceMock{streamFunc: func() *service.TurnStream { return stream }}, nil)

	body, _ := json.Marshal(dto.SendMessageRequest{Content: "问题"})
	w, c := studentContext(t, http.MethodPost, "/conversations/3/messages/stream", body)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	handler.StreamMessage(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	payload := w.Body.String()
	frames := strings.Split(strings.TrimSuffix(payload, "\n\n"), "\n\n")
	require.Len(t, frames, 3)
	assert.True(t, strings.HasPrefix(frames[0], "event: meta\ndata: "))
	assert.Contains(t, frames[1], `"delta":"你"`)
	assert.True(t, strings.HasPrefix(frames[2], "event: done\ndata: "))
}
