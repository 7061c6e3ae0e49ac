package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/llm"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	"github.com/noah-isme/socratic-tutor-api/pkg/config"
)

type configStoreStub struct {
	items map[string]string
	err   error
}

func (s *configStoreStub) Get(ctx context.Context, key string) (*models.SystemConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	if value, ok := s.items[key]; ok {
		return &models.SystemConfig{Key: key, Value: value}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *configStoreStub) ListByKeys(ctx context.Context, keys []string) ([]models.SystemConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	var result []models.SystemConfig
	for _, key := range keys {
		if value, ok := s.items[key]; ok {
			result = append(result, models.SystemConfig{Key: key, Value: value})
		}
	}
	return result, nil
}

func (s *configStoreStub) Upsert(ctx context.Context, cfg *models.SystemConfig) error {
	if s.err != nil {
		return s.err
	}
	if s.items == nil {
		s.items = make(map[string]string)
	}
	s.items[cfg.Key] = cfg.Value
	return nil
}

func llmDefaults() config.LLMConfig {
	return config.LLMConfig{
		Provider:     "openai",
		BaseURL:      "https://api.openai.com/v1",
		ModelName:    "gpt-4o-mini",
		Timeout:      120 * time.Second,
		ProbeTimeout: 30 * time.Second,
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", maskAPIKey(""))
	assert.Equal(t, "******", maskAPIKey("secret"))
	assert.Equal(t, "********", maskAPIKey("12345678"))
	assert.Equal(t, "sk-a*******5678", maskAPIKey("sk-abcdefgh5678"))
}

func TestLLMSettingsServiceUpdateSwapsSnapshot(t *testing.T) {
	store := &configStoreStub{}
	holder := llm.NewSettingsHolder(llm.Settings{Provider: "openai", BaseURL: "https://api.openai.com/v1", ModelName: "gpt-4o-mini"})
	audit := &auditRecorderStub{}
	service := NewLLMSettingsService(store, holder, audit, llmDefaults(), validator.New(), nil)

	model := "deepseek-chat"
	base := "https://api.deepseek.com/v1"
	resp, err := service.Update(context.Background(), dto.UpdateLLMConfigRequest{ModelName: &model, BaseURL: &base}, adminClaims())
	require.NoError(t, err)
	assert.True(t, resp.Success)

	snapshot := holder.Snapshot()
	assert.Equal(t, "deepseek-chat", snapshot.ModelName)
	assert.Equal(t, "https://api.deepseek.com/v1", snapshot.BaseURL)
	assert.Equal(t, "openai", snapshot.Provider, "untouched fields keep their defaults")
	assert.Contains(t, audit.actions, models.AuditActionLLMConfigUpdate)
}

func TestLLMSettingsServiceUpdateIgnoresEmptyAPIKey(t *testing.T) {
	store := &configStoreStub{items: map[string]string{configKeyLLMAPIKey: "sk-live-key-12345"}}
	holder := llm.NewSettingsHolder(llm.Settings{})
	service := NewLLMSettingsService(store, holder, &auditRecorderStub{}, llmDefaults(), validator.New(), nil)

	empty := "   "
	_, err := service.Update(context.Background(), dto.UpdateLLMConfigRequest{APIKey: &empty}, adminClaims())
	require.NoError(t, err)

	assert.Equal(t, "sk-live-key-12345", store.items[configKeyLLMAPIKey])
	assert.Equal(t, "sk-live-key-12345", holder.Snapshot().APIKey)
}

func TestLLMSettingsServiceSyncFromStoreOverlaysDefaults(t *testing.T) {
	store := &configStoreStub{items: map[string]string{
		configKeyLLMModelName: "glm-4",
		configKeyLLMAPIKey:    "sk-stored-key-0001",
	}}
	holder := llm.NewSettingsHolder(llm.Settings{})
	service := NewLLMSettingsService(store, holder, &auditRecorderStub{}, llmDefaults(), validator.New(), nil)

	require.NoError(t, service.SyncFromStore(context.Background()))

	snapshot := holder.Snapshot()
	assert.Equal(t, "glm-4", snapshot.ModelName)
	assert.Equal(t, "sk-stored-key-0001", snapshot.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", snapshot.BaseURL, "defaults fill keys without stored overrides")
}

func TestLLMSettingsServiceGetMasksKey(t *testing.T) {
	store := &configStoreStub{items: map[string]string{configKeyLLMAPIKey: "sk-abcdefgh5678"}}
	holder := llm.NewSettingsHolder(llm.Settings{})
	service := NewLLMSettingsService(store, holder, &auditRecorderStub{}, llmDefaults(), validator.New(), nil)

	resp, err := service.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.HasAPIKey)
	assert.Equal(t, "sk-a*******5678", resp.APIKeyMasked)
	assert.NotContains(t, resp.APIKeyMasked, "bcdefgh")
}

func TestLLMSettingsServiceTestReportsMissingKey(t *testing.T) {
	store := &configStoreStub{}
	holder := llm.NewSettingsHolder(llm.Settings{})
	service := NewLLMSettingsService(store, holder, &auditRecorderStub{}, llmDefaults(), validator.New(), nil)

	resp, err := service.Test(context.Background(), dto.LLMTestRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "api_key is not configured", resp.Message)
}
