package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

type promptRepoStub struct {
	prompts []*models.PromptScope
	err     error
}

func (s *promptRepoStub) scopeMatches(p *models.PromptScope, scope models.ScopeType, classID *string) bool {
	if p.ScopeType != scope {
		return false
	}
	if p.ClassID == nil || classID == nil {
		return p.ClassID == nil && classID == nil
	}
	return *p.ClassID == *classID
}

func (s *promptRepoStub) FindByID(ctx context.Context, id string) (*models.PromptScope, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.prompts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *promptRepoStub) FindActive(ctx context.Context, scope models.ScopeType, classID *string) (*models.PromptScope, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.prompts {
		if p.IsActive && s.scopeMatches(p, scope, classID) {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *promptRepoStub) Create(ctx context.Context, prompt *models.PromptScope, deactivateSiblings bool) error {
	if s.err != nil {
		return s.err
	}
	maxVersion := 0
	for _, p := range s.prompts {
		if s.scopeMatches(p, prompt.ScopeType, prompt.ClassID) && p.Version > maxVersion {
			maxVersion = p.Version
		}
	}
	prompt.Version = maxVersion + 1
	if deactivateSiblings {
		for _, p := range s.prompts {
			if s.scopeMatches(p, prompt.ScopeType, prompt.ClassID) {
				p.IsActive = false
			}
		}
	}
	s.prompts = append(s.prompts, prompt)
	return nil
}

func (s *promptRepoStub) Activate(ctx context.Context, prompt *models.PromptScope) error {
	if s.err != nil {
		return s.err
	}
	for _, p := range s.prompts {
		if s.scopeMatches(p, prompt.ScopeType, prompt.ClassID) {
			p.IsActive = p.ID == prompt.ID
		}
	}
	return nil
}

func (s *promptRepoStub) History(ctx context.Context, filter models.PromptHistoryFilter) ([]models.PromptScope, error) {
	if s.err != nil {
		return nil, s.err
	}
	var result []models.PromptScope
	for _, p := range s.prompts {
		if p.ScopeType == filter.ScopeType {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *promptRepoStub) CountHistory(ctx context.Context, filter models.PromptHistoryFilter) (int, error) {
	items, err := s.History(ctx, filter)
	return len(items), err
}

type classReaderStub struct {
	teacherAssigned bool
	studentEnrolled bool
	err             error
}

func (s classReaderStub) IsTeacherOfClass(ctx context.Context, classID, teacherID string) (bool, error) {
	return s.teacherAssigned, s.err
}

func (s classReaderStub) IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error) {
	return s.studentEnrolled, s.err
}

func (s classReaderStub) FindClass(ctx context.Context, id string) (*models.Class, error) {
	return &models.Class{ID: id, Name: "初一 3 班"}, nil
}

func (s classReaderStub) FindUserFullName(ctx context.Context, userID string) (string, error) {
	return "王小明", nil
}

type auditRecorderStub struct {
	actions []string
}

func (s *auditRecorderStub) Record(actorID *string, action string, targetType, targetID *string, meta map[string]interface{}) {
	s.actions = append(s.actions, action)
}

func strPtr(v string) *string { return &v }

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
}

func TestPromptServiceResolveContentMergesLayers(t *testing.T) {
	repo := &promptRepoStub{prompts: []*models.PromptScope{
		{ID: "g1", ScopeType: models.ScopeGlobal, Content: "全局要求", Version: 3, IsActive: true},
		{ID: "c1", ScopeType: models.ScopeClass, ClassID: strPtr("class-1"), Content: "班级要求", Version: 5, IsActive: true},
	}}
	service := NewPromptService(repo, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	merged, version, err := service.ResolveContent(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 5, version, "class layer version wins the stamp")
	assert.Equal(t, DefaultSystemPrompt+globalSectionMarker+"全局要求"+classSectionMarker+"班级要求", merged)
}

func TestPromptServiceResolveContentGlobalOnly(t *testing.T) {
	repo := &promptRepoStub{prompts: []*models.PromptScope{
		{ID: "g1", ScopeType: models.ScopeGlobal, Content: "全局要求", Version: 2, IsActive: true},
	}}
	service := NewPromptService(repo, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	merged, version, err := service.ResolveContent(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, DefaultSystemPrompt+globalSectionMarker+"全局要求", merged)
}

func TestPromptServiceResolveContentBaselineOnly(t *testing.T) {
	service := NewPromptService(&promptRepoStub{}, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	merged, version, err := service.ResolveContent(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 0, version)
	assert.Equal(t, DefaultSystemPrompt, merged)
}

func TestPromptServiceCreateAssignsMonotonicVersions(t *testing.T) {
	repo := &promptRepoStub{}
	service := NewPromptService(repo, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	first, err := service.Create(context.Background(), dto.CreatePromptRequest{ScopeType: models.ScopeGlobal, Content: "v1"}, adminClaims())
	require.NoError(t, err)
	second, err := service.Create(context.Background(), dto.CreatePromptRequest{ScopeType: models.ScopeGlobal, Content: "v2"}, adminClaims())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
}

func TestPromptServiceCreateAutoActivateRetiresSibling(t *testing.T) {
	repo := &promptRepoStub{}
	service := NewPromptService(repo, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	_, err := service.Create(context.Background(), dto.CreatePromptRequest{ScopeType: models.ScopeGlobal, Content: "v1", AutoActivate: true}, adminClaims())
	require.NoError(t, err)
	_, err = service.Create(context.Background(), dto.CreatePromptRequest{ScopeType: models.ScopeGlobal, Content: "v2", AutoActivate: true}, adminClaims())
	require.NoError(t, err)

	active := 0
	for _, p := range repo.prompts {
		if p.IsActive {
			active++
			assert.Equal(t, 2, p.Version)
		}
	}
	assert.Equal(t, 1, active, "exactly one version per scope may be active")
}

func TestPromptServiceCreateClassRequiresClassID(t *testing.T) {
	service := NewPromptService(&promptRepoStub{}, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	_, err := service.Create(context.Background(), dto.CreatePromptRequest{ScopeType: models.ScopeClass, Content: "班级要求"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPromptServiceCreateGlobalRequiresAdmin(t *testing.T) {
	service := NewPromptService(&promptRepoStub{}, classReaderStub{teacherAssigned: true}, &auditRecorderStub{}, nil, validator.New(), nil)

	_, err := service.Create(context.Background(), dto.CreatePromptRequest{ScopeType: models.ScopeGlobal, Content: "全局要求"}, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPromptServiceCreateClassRequiresAssignment(t *testing.T) {
	service := NewPromptService(&promptRepoStub{}, classReaderStub{teacherAssigned: false}, &auditRecorderStub{}, nil, validator.New(), nil)

	req := dto.CreatePromptRequest{ScopeType: models.ScopeClass, ClassID: strPtr("1d9bb221-6a86-4d07-8b6a-6fd0d15a9c5c"), Content: "班级要求"}
	_, err := service.Create(context.Background(), req, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPromptServiceActivateUnknownPrompt(t *testing.T) {
	service := NewPromptService(&promptRepoStub{}, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	_, err := service.Activate(context.Background(), "missing", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPromptServiceActivateRollsBackToEarlierVersion(t *testing.T) {
	repo := &promptRepoStub{prompts: []*models.PromptScope{
		{ID: "g1", ScopeType: models.ScopeGlobal, Content: "v1", Version: 1, IsActive: false},
		{ID: "g2", ScopeType: models.ScopeGlobal, Content: "v2", Version: 2, IsActive: true},
	}}
	audit := &auditRecorderStub{}
	service := NewPromptService(repo, classReaderStub{}, audit, nil, validator.New(), nil)

	resp, err := service.Activate(context.Background(), "g1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Version)

	for _, p := range repo.prompts {
		assert.Equal(t, p.ID == "g1", p.IsActive)
	}
	assert.Contains(t, audit.actions, models.AuditActionPromptActivate)
}

func TestPromptServiceHistoryClassRequiresClassID(t *testing.T) {
	service := NewPromptService(&promptRepoStub{}, classReaderStub{}, &auditRecorderStub{}, nil, validator.New(), nil)

	_, _, err := service.History(context.Background(), models.PromptHistoryFilter{ScopeType: models.ScopeClass})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
