package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/llm"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

// aiUnavailableMessage is the student-facing notice shown whenever the
// provider fails mid-turn. Product copy, kept verbatim.
const aiUnavailableMessage = "抱歉，AI 服务暂时不可用，请稍后重试"

func aiUnavailableContent(err error) string {
	return aiUnavailableMessage + "。错误信息：" + err.Error()
}

type chatConversationRepository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	FindByID(ctx context.Context, id int64) (*models.Conversation, error)
	ListSummaries(ctx context.Context, filter models.ConversationFilter) ([]models.ConversationSummary, error)
	CountSummaries(ctx context.Context, filter models.ConversationFilter) (int, error)
	SalvageFirstTurn(ctx context.Context, conversationID int64) error
}

type chatMessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByConversation(ctx context.Context, conversationID int64) ([]models.Message, error)
	CompleteTurn(ctx context.Context, conversationID int64, assistant *models.Message) error
	SettleStreamTurn(ctx context.Context, conversationID, assistantID int64, content string, flags models.PolicyFlags, tokenIn, tokenOut *int) error
}

type chatClassReader interface {
	IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error)
	IsTeacherOfClass(ctx context.Context, classID, teacherID string) (bool, error)
	FindClass(ctx context.Context, id string) (*models.Class, error)
	FindUserFullName(ctx context.Context, userID string) (string, error)
}

type promptResolver interface {
	ResolveContent(ctx context.Context, classID string) (string, int, error)
}

type providerSource interface {
	Provider() llm.Provider
}

type settingsSource interface {
	Snapshot() llm.Settings
}

// ChatService owns the conversation lifecycle and the tutoring turn
// protocol. Concurrent turns on one conversation are not serialised; the
// interleaving is bounded by message timestamps only.
type ChatService struct {
	conversations chatConversationRepository
	messages      chatMessageRepository
	classes       chatClassReader
	prompts       promptResolver
	providers     providerSource
	settings      settingsSource
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewChatService constructs a ChatService.
func NewChatService(
	conversations chatConversationRepository,
	messages chatMessageRepository,
	classes chatClassReader,
	prompts promptResolver,
	providers providerSource,
	settings settingsSource,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		classes:       classes,
		prompts:       prompts,
		providers:     providers,
		settings:      settings,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
	}
}

// CreateConversation opens a session for an enrolled student, stamping the
// prompt version and provider settings in effect at creation time.
func (s *ChatService) CreateConversation(ctx context.Context, req dto.CreateConversationRequest, actor *models.JWTClaims) (*dto.ConversationInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conversation payload")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may create conversations")
	}

	enrolled, err := s.classes.IsStudentInClass(ctx, req.ClassID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this class")
	}

	_, promptVersion, err := s.prompts.ResolveContent(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	snapshot := s.settings.Snapshot()
	conv := &models.Conversation{
		ClassID:       req.ClassID,
		StudentID:     actor.UserID,
		Title:         req.Title,
		PromptVersion: promptVersion,
		ModelProvider: snapshot.Provider,
		ModelName:     snapshot.ModelName,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create conversation")
	}

	info := s.conversationToInfo(ctx, conv, 0, nil)
	return &info, nil
}

// ListConversations returns the student's own sessions. Sessions without a
// single assistant reply are excluded.
func (s *ChatService) ListConversations(ctx context.Context, classID *string, page, pageSize int, actor *models.JWTClaims) ([]dto.ConversationInfo, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "teachers and admins use the teacher listing endpoint")
	}

	filter := s.normalizeFilter(models.ConversationFilter{StudentID: actor.UserID, ClassID: classID, Page: page, PageSize: pageSize})
	return s.listSummaries(ctx, filter)
}

// ListClassStudentConversations returns one student's sessions within a
// class, for teachers assigned to the class and admins.
func (s *ChatService) ListClassStudentConversations(ctx context.Context, classID, studentID string, page, pageSize int, actor *models.JWTClaims) ([]dto.ConversationInfo, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if err := s.requireClassAudit(ctx, classID, actor); err != nil {
		return nil, nil, err
	}

	enrolled, err := s.classes.IsStudentInClass(ctx, classID, studentID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	if !enrolled {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not in this class")
	}

	filter := s.normalizeFilter(models.ConversationFilter{StudentID: studentID, ClassID: &classID, Page: page, PageSize: pageSize})
	return s.listSummaries(ctx, filter)
}

// GetMessages returns the full transcript, visible to the owning student,
// teachers assigned to the class, and admins.
func (s *ChatService) GetMessages(ctx context.Context, conversationID int64, actor *models.JWTClaims) (*dto.MessageListResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	conv, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case models.RoleStudent:
		if conv.StudentID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not your conversation")
		}
	case models.RoleTeacher:
		if err := s.requireClassAudit(ctx, conv.ClassID, actor); err != nil {
			return nil, err
		}
	case models.RoleAdmin:
	default:
		return nil, appErrors.ErrForbidden
	}

	history, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}

	items := make([]dto.MessageInfo, 0, len(history))
	for i := range history {
		items = append(items, messageToInfo(&history[i]))
	}
	return &dto.MessageListResponse{ConversationID: conversationID, Messages: items}, nil
}

// SendMessage runs one synchronous tutoring turn. Provider failures never
// surface as transport errors: a failed first turn salvages the whole
// conversation and answers in-band with an unpersisted assistant payload
// (id 0), a later failure is persisted as an unavailability notice.
func (s *ChatService) SendMessage(ctx context.Context, conversationID int64, req dto.SendMessageRequest, actor *models.JWTClaims) (*dto.SendMessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}

	conv, err := s.requireOwnedConversation(ctx, conversationID, actor)
	if err != nil {
		return nil, err
	}

	history, chatMessages, err := s.buildTurnContext(ctx, conv, req.Content)
	if err != nil {
		return nil, err
	}
	hasPriorAssistant := containsAssistant(history)

	userMessage := &models.Message{ConversationID: conversationID, Role: models.MessageRoleUser, Content: req.Content}
	if err := s.messages.Create(ctx, userMessage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist message")
	}

	snapshot := s.settings.Snapshot()
	provider := s.providers.Provider()
	start := time.Now()
	result, err := provider.Chat(ctx, chatMessages, llm.DefaultOptions())
	s.observeLLM(snapshot, err == nil, time.Since(start))

	if err != nil {
		return s.settleFailedTurn(ctx, conv, userMessage, hasPriorAssistant, err)
	}

	flags := models.PolicyFlags{
		"provider":   result.Provider,
		"model":      result.Model,
		"latency_ms": result.LatencyMS,
	}
	assistantMessage := &models.Message{
		ConversationID: conversationID,
		Role:           models.MessageRoleAssistant,
		Content:        result.Content,
		TokenIn:        &result.TokenIn,
		TokenOut:       &result.TokenOut,
		PolicyFlags:    flags,
	}
	if err := s.messages.CompleteTurn(ctx, conversationID, assistantMessage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist assistant reply")
	}
	s.metrics.AddLLMTokens(result.TokenIn, result.TokenOut)

	return &dto.SendMessageResponse{
		UserMessage:      messageToInfo(userMessage),
		AssistantMessage: messageToInfo(assistantMessage),
		PolicyFlags:      flags,
	}, nil
}

// StreamEvent is one SSE frame produced by a streaming turn.
type StreamEvent struct {
	Event   string
	Payload interface{}
}

// TurnStream carries the ordered event sequence of one streaming turn. The
// channel is closed once the turn has settled, success or not.
type TurnStream struct {
	events chan StreamEvent
}

// NewTurnStream creates a stream with room for buffer pending events.
func NewTurnStream(buffer int) *TurnStream {
	return &TurnStream{events: make(chan StreamEvent, buffer)}
}

// Publish appends an event to the stream.
func (t *TurnStream) Publish(event StreamEvent) {
	t.events <- event
}

// Close marks the turn as settled. No events may be published afterwards.
func (t *TurnStream) Close() {
	close(t.events)
}

// Events exposes the stream for draining. Consumers must drain until close.
func (t *TurnStream) Events() <-chan StreamEvent {
	return t.events
}

// StreamMessage runs one streaming tutoring turn. Both turn halves are
// persisted before the first event so the meta frame can carry stable
// identifiers; the assistant placeholder is filled in when the stream
// settles. Authorization and persistence errors are returned synchronously
// before any event is emitted.
func (s *ChatService) StreamMessage(ctx context.Context, conversationID int64, req dto.SendMessageRequest, actor *models.JWTClaims) (*TurnStream, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}

	conv, err := s.requireOwnedConversation(ctx, conversationID, actor)
	if err != nil {
		return nil, err
	}

	history, chatMessages, err := s.buildTurnContext(ctx, conv, req.Content)
	if err != nil {
		return nil, err
	}
	hasPriorAssistant := containsAssistant(history)

	userMessage := &models.Message{ConversationID: conversationID, Role: models.MessageRoleUser, Content: req.Content}
	if err := s.messages.Create(ctx, userMessage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist message")
	}

	placeholder := &models.Message{ConversationID: conversationID, Role: models.MessageRoleAssistant, Content: "", PolicyFlags: models.PolicyFlags{}}
	if err := s.messages.Create(ctx, placeholder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist assistant placeholder")
	}

	stream := NewTurnStream(16)

	// The turn settles even when the client disconnects mid-stream, so the
	// provider call runs on a detached context.
	go s.runStreamTurn(context.WithoutCancel(ctx), conv, userMessage, placeholder, hasPriorAssistant, chatMessages, stream)

	return stream, nil
}

func (s *ChatService) runStreamTurn(ctx context.Context, conv *models.Conversation, userMessage, placeholder *models.Message, hasPriorAssistant bool, chatMessages []llm.Message, stream *TurnStream) {
	defer stream.Close()

	stream.Publish(StreamEvent{Event: "meta", Payload: map[string]interface{}{
		"type":              "meta",
		"user_message":      messageToInfo(userMessage),
		"assistant_message": messageToInfo(placeholder),
	}})

	snapshot := s.settings.Snapshot()
	provider := s.providers.Provider()

	var content strings.Builder
	deltas := 0
	start := time.Now()
	err := provider.ChatStream(ctx, chatMessages, llm.DefaultOptions(), func(delta string) error {
		content.WriteString(delta)
		deltas++
		stream.Publish(StreamEvent{Event: "delta", Payload: map[string]interface{}{"type": "delta", "delta": delta}})
		return nil
	})
	elapsed := time.Since(start)
	s.observeLLM(snapshot, err == nil, elapsed)
	s.metrics.AddLLMStreamDeltas(deltas)

	if err != nil {
		flags := models.PolicyFlags{"error": err.Error()}
		if !hasPriorAssistant {
			if salvageErr := s.conversations.SalvageFirstTurn(ctx, conv.ID); salvageErr != nil {
				s.logger.Error("failed to salvage first turn", zap.Int64("conversation_id", conv.ID), zap.Error(salvageErr))
			}
		} else {
			if settleErr := s.messages.SettleStreamTurn(ctx, conv.ID, placeholder.ID, aiUnavailableContent(err), flags, nil, nil); settleErr != nil {
				s.logger.Error("failed to persist stream failure notice", zap.Int64("conversation_id", conv.ID), zap.Error(settleErr))
			}
		}
		stream.Publish(StreamEvent{Event: "error", Payload: map[string]interface{}{"type": "error", "message": aiUnavailableMessage}})
		return
	}

	flags := models.PolicyFlags{
		"provider":   snapshot.Provider,
		"model":      snapshot.ModelName,
		"latency_ms": elapsed.Milliseconds(),
	}
	if settleErr := s.messages.SettleStreamTurn(ctx, conv.ID, placeholder.ID, content.String(), flags, nil, nil); settleErr != nil {
		s.logger.Error("failed to settle stream turn", zap.Int64("conversation_id", conv.ID), zap.Error(settleErr))
		stream.Publish(StreamEvent{Event: "error", Payload: map[string]interface{}{"type": "error", "message": aiUnavailableMessage}})
		return
	}
	stream.Publish(StreamEvent{Event: "done", Payload: map[string]interface{}{"type": "done", "policy_flags": flags}})
}

func (s *ChatService) settleFailedTurn(ctx context.Context, conv *models.Conversation, userMessage *models.Message, hasPriorAssistant bool, cause error) (*dto.SendMessageResponse, error) {
	flags := models.PolicyFlags{"error": cause.Error()}

	if !hasPriorAssistant {
		if err := s.conversations.SalvageFirstTurn(ctx, conv.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to salvage first turn")
		}
		return &dto.SendMessageResponse{
			UserMessage: messageToInfo(userMessage),
			AssistantMessage: dto.MessageInfo{
				ID:        0,
				Role:      string(models.MessageRoleAssistant),
				Content:   aiUnavailableContent(cause),
				CreatedAt: time.Now().UTC(),
			},
			PolicyFlags: flags,
		}, nil
	}

	notice := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleAssistant,
		Content:        aiUnavailableContent(cause),
		PolicyFlags:    flags,
	}
	if err := s.messages.CompleteTurn(ctx, conv.ID, notice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist unavailability notice")
	}

	return &dto.SendMessageResponse{
		UserMessage:      messageToInfo(userMessage),
		AssistantMessage: messageToInfo(notice),
		PolicyFlags:      flags,
	}, nil
}

func (s *ChatService) buildTurnContext(ctx context.Context, conv *models.Conversation, userContent string) ([]models.Message, []llm.Message, error) {
	// Prompts are re-resolved live on every turn; the stamped version only
	// records what was in effect at creation time.
	systemPrompt, _, err := s.prompts.ResolveContent(ctx, conv.ClassID)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	chatMessages := make([]llm.Message, 0, len(history)+2)
	chatMessages = append(chatMessages, llm.Message{Role: string(models.MessageRoleSystem), Content: systemPrompt})
	for _, msg := range history {
		chatMessages = append(chatMessages, llm.Message{Role: string(msg.Role), Content: msg.Content})
	}
	chatMessages = append(chatMessages, llm.Message{Role: string(models.MessageRoleUser), Content: userContent})

	return history, chatMessages, nil
}

func (s *ChatService) requireOwnedConversation(ctx context.Context, conversationID int64, actor *models.JWTClaims) (*models.Conversation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may send messages")
	}

	conv, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your conversation")
	}
	return conv, nil
}

func (s *ChatService) findConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errorsIsNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch conversation")
	}
	return conv, nil
}

func (s *ChatService) requireClassAudit(ctx context.Context, classID string, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	assigned, err := s.classes.IsTeacherOfClass(ctx, classID, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify class assignment")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrForbidden, "not assigned to this class")
	}
	return nil
}

func (s *ChatService) listSummaries(ctx context.Context, filter models.ConversationFilter) ([]dto.ConversationInfo, *models.Pagination, error) {
	total, err := s.conversations.CountSummaries(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count conversations")
	}
	rows, err := s.conversations.ListSummaries(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}

	items := make([]dto.ConversationInfo, 0, len(rows))
	for i := range rows {
		info := s.conversationToInfo(ctx, &rows[i].Conversation, rows[i].MessageCount, rows[i].FirstUserMessagePreview)
		items = append(items, info)
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return items, pagination, nil
}

func (s *ChatService) normalizeFilter(filter models.ConversationFilter) models.ConversationFilter {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return filter
}

func (s *ChatService) conversationToInfo(ctx context.Context, conv *models.Conversation, messageCount int, preview *string) dto.ConversationInfo {
	info := dto.ConversationInfo{
		ID:                      conv.ID,
		ClassID:                 conv.ClassID,
		StudentID:               conv.StudentID,
		Title:                   conv.Title,
		FirstUserMessagePreview: preview,
		PromptVersion:           conv.PromptVersion,
		ModelProvider:           conv.ModelProvider,
		ModelName:               conv.ModelName,
		CreatedAt:               conv.CreatedAt,
		LastMessageAt:           conv.LastMessageAt,
		MessageCount:            messageCount,
	}
	if class, err := s.classes.FindClass(ctx, conv.ClassID); err == nil {
		info.ClassName = &class.Name
	}
	if name, err := s.classes.FindUserFullName(ctx, conv.StudentID); err == nil && name != "" {
		info.StudentName = &name
	}
	return info
}

func (s *ChatService) observeLLM(snapshot llm.Settings, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	s.metrics.ObserveLLMRequest(snapshot.Provider, snapshot.ModelName, outcome, duration)
}

func containsAssistant(history []models.Message) bool {
	for _, msg := range history {
		if msg.Role == models.MessageRoleAssistant {
			return true
		}
	}
	return false
}

func messageToInfo(msg *models.Message) dto.MessageInfo {
	return dto.MessageInfo{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		TokenIn:   msg.TokenIn,
		TokenOut:  msg.TokenOut,
	}
}

func errorsIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
