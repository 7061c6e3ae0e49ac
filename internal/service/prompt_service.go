package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

// DefaultSystemPrompt is the fixed platform baseline every class resolves
// on top of. It is product copy and intentionally not configurable.
const DefaultSystemPrompt = `你是一位中学生编程导师，采用苏格拉底式教学法，但要优先降低学生的空白感。
你的目标是先给方向和骨架，再通过提问帮助学生理解。

硬性规则：
1. 回复只能使用纯文本，不使用任何 markdown 标记。
2. 默认教学语言是 Python，除非学生明确要求其他语言。
3. 不直接给完整最终答案，但必须给可执行的半成品填空框架。
4. 每次回复最多提出 1-2 个关键问题，避免连续追问造成挫败感。
5. 如果同一任务连续 2 轮没有进展，立即切换为更具体的填空引导。
6. 如果学生明确说没思路或要求先给框架，直接进入填空模式。
7. 发现学生报错时，先指出可能出错的位置，再引导修复。

回复流程（必须遵守）：
第一步：用 1-2 句话确认学生要完成的任务。
第二步：给一个 Python 填空框架（4-12 行，保留 2-4 个空）。
第三步：逐条解释每个空位的作用和思路。
第四步：只让学生先填 1 个空，再继续下一步。

填空框架格式要求：
- 空位统一写成 ____1____、____2____ 这种形式。
- 框架要包含完整结构线索，例如初始化、循环、条件、输出。
- 不要一次讲完所有细节，要先让学生完成当前一步。

示例风格（仅作风格参考）：
任务：计算 1 到 100 的和
框架：
total = ____1____
for i in range(____2____, ____3____):
    total += ____4____
print(total)
解释：
____1____ 是累加器初值；____2____ 和 ____3____ 决定循环范围。
下一步：
你先填写 ____1____，并说说为什么这样填。
`

const (
	globalSectionMarker = "\n\n【全局配置】\n"
	classSectionMarker  = "\n\n【班级配置】\n"
)

const promptCachePattern = "prompts:effective:*"

type promptRepository interface {
	FindByID(ctx context.Context, id string) (*models.PromptScope, error)
	FindActive(ctx context.Context, scope models.ScopeType, classID *string) (*models.PromptScope, error)
	Create(ctx context.Context, prompt *models.PromptScope, deactivateSiblings bool) error
	Activate(ctx context.Context, prompt *models.PromptScope) error
	History(ctx context.Context, filter models.PromptHistoryFilter) ([]models.PromptScope, error)
	CountHistory(ctx context.Context, filter models.PromptHistoryFilter) (int, error)
}

type promptClassReader interface {
	IsTeacherOfClass(ctx context.Context, classID, teacherID string) (bool, error)
}

type auditRecorder interface {
	Record(actorID *string, action string, targetType, targetID *string, meta map[string]interface{})
}

// PromptService resolves, versions and activates hierarchical prompt
// configurations.
type PromptService struct {
	repo      promptRepository
	classes   promptClassReader
	audit     auditRecorder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPromptService constructs a PromptService.
func NewPromptService(repo promptRepository, classes promptClassReader, audit auditRecorder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PromptService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptService{repo: repo, classes: classes, audit: audit, cache: cache, validator: validate, logger: logger}
}

type resolvedPrompt struct {
	MergedContent string `json:"merged_content"`
	Version       int    `json:"version"`
}

// ResolveContent returns the merged prompt text and the effective version
// for a class: baseline, then the active global layer, then the active
// class layer. The class version wins the stamp; 0 when neither exists.
func (s *PromptService) ResolveContent(ctx context.Context, classID string) (string, int, error) {
	cacheKey := "prompts:effective:" + classID
	if s.cache.Enabled() {
		var cached resolvedPrompt
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return cached.MergedContent, cached.Version, nil
		}
	}

	global, class, err := s.activeLayers(ctx, classID)
	if err != nil {
		return "", 0, err
	}
	merged, version := mergePromptLayers(global, class)

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, resolvedPrompt{MergedContent: merged, Version: version}, 0)
	}
	return merged, version, nil
}

// Effective returns the merged prompt alongside the contributing layers.
func (s *PromptService) Effective(ctx context.Context, classID string) (*dto.EffectivePromptResponse, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}
	global, class, err := s.activeLayers(ctx, classID)
	if err != nil {
		return nil, err
	}
	merged, version := mergePromptLayers(global, class)

	resp := &dto.EffectivePromptResponse{MergedContent: merged, Version: version}
	if global != nil {
		info := promptToInfo(global)
		resp.GlobalPrompt = &info
	}
	if class != nil {
		info := promptToInfo(class)
		resp.ClassPrompt = &info
	}
	return resp, nil
}

// Create appends a new version to a scope, optionally activating it.
func (s *PromptService) Create(ctx context.Context, req dto.CreatePromptRequest, actor *models.JWTClaims) (*dto.PromptInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prompt payload")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	switch req.ScopeType {
	case models.ScopeGlobal:
		if actor.Role != models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may manage global prompts")
		}
		req.ClassID = nil
	case models.ScopeClass:
		if req.ClassID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class prompts require class_id")
		}
		if err := s.requireClassAuthority(ctx, *req.ClassID, actor); err != nil {
			return nil, err
		}
	}

	prompt := &models.PromptScope{
		ID:        uuid.NewString(),
		ScopeType: req.ScopeType,
		ClassID:   req.ClassID,
		Content:   req.Content,
		IsActive:  req.AutoActivate,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, prompt, req.AutoActivate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create prompt")
	}

	s.invalidateResolved(ctx)
	s.recordAudit(actor, models.AuditActionPromptCreate, nil, map[string]interface{}{
		"scope_type": prompt.ScopeType,
		"class_id":   prompt.ClassID,
		"version":    prompt.Version,
	})

	info := promptToInfo(prompt)
	return &info, nil
}

// Activate makes the given version the scope's single active one. Used for
// rollback to an earlier version.
func (s *PromptService) Activate(ctx context.Context, promptID string, actor *models.JWTClaims) (*dto.ActivatePromptResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	prompt, err := s.repo.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prompt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch prompt")
	}

	if prompt.ScopeType == models.ScopeGlobal && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may manage global prompts")
	}
	if prompt.ScopeType == models.ScopeClass && prompt.ClassID != nil {
		if err := s.requireClassAuthority(ctx, *prompt.ClassID, actor); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Activate(ctx, prompt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate prompt")
	}

	s.invalidateResolved(ctx)
	s.recordAudit(actor, models.AuditActionPromptActivate, &prompt.ID, map[string]interface{}{
		"version": prompt.Version,
	})

	return &dto.ActivatePromptResponse{Message: "prompt activated", Version: prompt.Version}, nil
}

// History lists the versions of a scope, newest first.
func (s *PromptService) History(ctx context.Context, filter models.PromptHistoryFilter) ([]dto.PromptInfo, *models.Pagination, error) {
	if filter.ScopeType == models.ScopeClass && filter.ClassID == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "class prompt history requires class_id")
	}
	if filter.ScopeType == models.ScopeGlobal {
		filter.ClassID = nil
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	total, err := s.repo.CountHistory(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count prompt history")
	}
	prompts, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prompt history")
	}

	items := make([]dto.PromptInfo, 0, len(prompts))
	for i := range prompts {
		items = append(items, promptToInfo(&prompts[i]))
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return items, pagination, nil
}

func (s *PromptService) activeLayers(ctx context.Context, classID string) (*models.PromptScope, *models.PromptScope, error) {
	global, err := s.repo.FindActive(ctx, models.ScopeGlobal, nil)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve global prompt")
	}

	class, err := s.repo.FindActive(ctx, models.ScopeClass, &classID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class prompt")
	}
	return global, class, nil
}

func (s *PromptService) requireClassAuthority(ctx context.Context, classID string, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		assigned, err := s.classes.IsTeacherOfClass(ctx, classID, actor.UserID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify class assignment")
		}
		if !assigned {
			return appErrors.Clone(appErrors.ErrForbidden, "not assigned to this class")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role for prompt management")
	}
}

func (s *PromptService) invalidateResolved(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, promptCachePattern); err != nil {
		s.logger.Warn("failed to invalidate resolved prompts", zap.Error(err))
	}
}

func (s *PromptService) recordAudit(actor *models.JWTClaims, action string, targetID *string, meta map[string]interface{}) {
	if s.audit == nil {
		return
	}
	targetType := "prompt"
	s.audit.Record(actorIDPtr(actor), action, &targetType, targetID, meta)
}

func mergePromptLayers(global, class *models.PromptScope) (string, int) {
	var b strings.Builder
	b.WriteString(DefaultSystemPrompt)
	version := 0
	if global != nil {
		b.WriteString(globalSectionMarker)
		b.WriteString(global.Content)
		version = global.Version
	}
	if class != nil {
		b.WriteString(classSectionMarker)
		b.WriteString(class.Content)
		version = class.Version
	}
	return b.String(), version
}

func promptToInfo(p *models.PromptScope) dto.PromptInfo {
	return dto.PromptInfo{
		ID:        p.ID,
		ScopeType: p.ScopeType,
		ClassID:   p.ClassID,
		Content:   p.Content,
		Version:   p.Version,
		IsActive:  p.IsActive,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}

func actorIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
