package dto

// LLMConfigResponse exposes the stored provider settings with the API key
// masked.
type LLMConfigResponse struct {
	ProviderName string `json:"provider_name"`
	BaseURL      string `json:"base_url"`
	APIKeyMasked string `json:"api_key_masked"`
	ModelName    string `json:"model_name"`
	HasAPIKey    bool   `json:"has_api_key"`
}

// UpdateLLMConfigRequest carries partial provider settings updates. A nil
// field is left untouched; an empty api_key never overwrites a stored one.
type UpdateLLMConfigRequest struct {
	ProviderName *string `json:"provider_name,omitempty"`
	BaseURL      *string `json:"base_url,omitempty" validate:"omitempty,url"`
	APIKey       *string `json:"api_key,omitempty"`
	ModelName    *string `json:"model_name,omitempty"`
}

// UpdateLLMConfigResponse confirms an update and echoes the stored state.
type UpdateLLMConfigResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Config  LLMConfigResponse `json:"config"`
}

// LLMTestRequest optionally overrides stored settings for a probe call.
type LLMTestRequest struct {
	BaseURL   *string `json:"base_url,omitempty"`
	APIKey    *string `json:"api_key,omitempty"`
	ModelName *string `json:"model_name,omitempty"`
}

// LLMTestResponse reports the probe outcome.
type LLMTestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMS *int64 `json:"latency_ms,omitempty"`
	Model     string `json:"model,omitempty"`
}
