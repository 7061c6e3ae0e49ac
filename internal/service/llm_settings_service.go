package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/llm"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	"github.com/noah-isme/socratic-tutor-api/pkg/config"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

const (
	configKeyLLMProvider  = "llm.provider"
	configKeyLLMBaseURL   = "llm.base_url"
	configKeyLLMAPIKey    = "llm.api_key"
	configKeyLLMModelName = "llm.model_name"
)

type systemConfigStore interface {
	Get(ctx context.Context, key string) (*models.SystemConfig, error)
	ListByKeys(ctx context.Context, keys []string) ([]models.SystemConfig, error)
	Upsert(ctx context.Context, cfg *models.SystemConfig) error
}

// LLMSettingsService manages the runtime provider configuration: persisted
// overrides in system_configs, boot defaults from the environment, and the
// live snapshot turns read from.
type LLMSettingsService struct {
	store       systemConfigStore
	holder      *llm.SettingsHolder
	audit       auditRecorder
	defaults    config.LLMConfig
	probeClient *http.Client
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLLMSettingsService constructs the service.
func NewLLMSettingsService(store systemConfigStore, holder *llm.SettingsHolder, audit auditRecorder, defaults config.LLMConfig, validate *validator.Validate, logger *zap.Logger) *LLMSettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	probeTimeout := defaults.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaults.Timeout
	}
	return &LLMSettingsService{
		store:       store,
		holder:      holder,
		audit:       audit,
		defaults:    defaults,
		probeClient: &http.Client{Timeout: probeTimeout},
		validator:   validate,
		logger:      logger,
	}
}

// SyncFromStore overlays persisted overrides onto the boot defaults and
// publishes the result. Called once at startup so database overrides survive
// process restarts.
func (s *LLMSettingsService) SyncFromStore(ctx context.Context) error {
	settings, err := s.effectiveSettings(ctx)
	if err != nil {
		return err
	}
	s.holder.Update(settings)
	s.logger.Info("llm settings synced",
		zap.String("provider", settings.Provider),
		zap.String("model", settings.ModelName))
	return nil
}

// Get returns the effective settings with the API key masked.
func (s *LLMSettingsService) Get(ctx context.Context) (*dto.LLMConfigResponse, error) {
	settings, err := s.effectiveSettings(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load llm settings")
	}
	resp := settingsToResponse(settings)
	return &resp, nil
}

// Update persists the provided fields, rebuilds the whole snapshot from the
// store, and swaps it live. An empty api_key in the request never clears a
// stored key.
func (s *LLMSettingsService) Update(ctx context.Context, req dto.UpdateLLMConfigRequest, actor *models.JWTClaims) (*dto.UpdateLLMConfigResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid llm settings payload")
	}

	updated := make([]string, 0, 4)
	persist := func(key string, value *string) error {
		if value == nil {
			return nil
		}
		if err := s.store.Upsert(ctx, &models.SystemConfig{Key: key, Value: strings.TrimSpace(*value)}); err != nil {
			return err
		}
		updated = append(updated, key)
		return nil
	}

	if err := persist(configKeyLLMProvider, req.ProviderName); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist llm settings")
	}
	if err := persist(configKeyLLMBaseURL, req.BaseURL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist llm settings")
	}
	if req.APIKey != nil && strings.TrimSpace(*req.APIKey) != "" {
		if err := persist(configKeyLLMAPIKey, req.APIKey); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist llm settings")
		}
	}
	if err := persist(configKeyLLMModelName, req.ModelName); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist llm settings")
	}

	settings, err := s.effectiveSettings(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload llm settings")
	}
	s.holder.Update(settings)

	if s.audit != nil && len(updated) > 0 {
		s.audit.Record(actorIDPtr(actor), models.AuditActionLLMConfigUpdate, nil, nil, map[string]interface{}{
			"updated_fields": updated,
		})
	}

	return &dto.UpdateLLMConfigResponse{
		Success: true,
		Message: "llm settings updated",
		Config:  settingsToResponse(settings),
	}, nil
}

// Test probes the configured provider with a minimal completion. Request
// overrides apply for the probe only and are never persisted. Probe failures
// are reported in-band, not as transport errors.
func (s *LLMSettingsService) Test(ctx context.Context, req dto.LLMTestRequest) (*dto.LLMTestResponse, error) {
	settings, err := s.effectiveSettings(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load llm settings")
	}
	if req.BaseURL != nil && strings.TrimSpace(*req.BaseURL) != "" {
		settings.BaseURL = strings.TrimSpace(*req.BaseURL)
	}
	if req.APIKey != nil && strings.TrimSpace(*req.APIKey) != "" {
		settings.APIKey = strings.TrimSpace(*req.APIKey)
	}
	if req.ModelName != nil && strings.TrimSpace(*req.ModelName) != "" {
		settings.ModelName = strings.TrimSpace(*req.ModelName)
	}

	if settings.BaseURL == "" {
		return &dto.LLMTestResponse{Success: false, Message: "base_url is not configured"}, nil
	}
	if settings.APIKey == "" {
		return &dto.LLMTestResponse{Success: false, Message: "api_key is not configured"}, nil
	}
	if settings.ModelName == "" {
		return &dto.LLMTestResponse{Success: false, Message: "model_name is not configured"}, nil
	}

	provider := llm.NewOpenAIProvider(settings, s.probeClient)
	opts := llm.DefaultOptions()
	opts.MaxTokens = 5
	result, err := provider.Chat(ctx, []llm.Message{{Role: "user", Content: "Hi"}}, opts)
	if err != nil {
		return &dto.LLMTestResponse{Success: false, Message: err.Error()}, nil
	}

	return &dto.LLMTestResponse{
		Success:   true,
		Message:   "connection ok",
		LatencyMS: &result.LatencyMS,
		Model:     result.Model,
	}, nil
}

func (s *LLMSettingsService) effectiveSettings(ctx context.Context) (llm.Settings, error) {
	settings := llm.Settings{
		Provider:  s.defaults.Provider,
		BaseURL:   s.defaults.BaseURL,
		APIKey:    s.defaults.APIKey,
		ModelName: s.defaults.ModelName,
	}

	rows, err := s.store.ListByKeys(ctx, []string{configKeyLLMProvider, configKeyLLMBaseURL, configKeyLLMAPIKey, configKeyLLMModelName})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return llm.Settings{}, err
	}
	for _, row := range rows {
		if row.Value == "" {
			continue
		}
		switch row.Key {
		case configKeyLLMProvider:
			settings.Provider = row.Value
		case configKeyLLMBaseURL:
			settings.BaseURL = row.Value
		case configKeyLLMAPIKey:
			settings.APIKey = row.Value
		case configKeyLLMModelName:
			settings.ModelName = row.Value
		}
	}
	return settings, nil
}

func settingsToResponse(settings llm.Settings) dto.LLMConfigResponse {
	return dto.LLMConfigResponse{
		ProviderName: settings.Provider,
		BaseURL:      settings.BaseURL,
		APIKeyMasked: maskAPIKey(settings.APIKey),
		ModelName:    settings.ModelName,
		HasAPIKey:    settings.APIKey != "",
	}
}

// maskAPIKey keeps the first and last four characters of keys longer than
// eight characters and hides everything else.
func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
