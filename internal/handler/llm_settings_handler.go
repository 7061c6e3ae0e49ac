package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
	"github.com/noah-isme/socratic-tutor-api/pkg/response"
)

type llmSettingsService interface {
	Get(ctx context.Context) (*dto.LLMConfigResponse, error)
	Update(ctx context.Context, req dto.UpdateLLMConfigRequest, actor *models.JWTClaims) (*dto.UpdateLLMConfigResponse, error)
	Test(ctx context.Context, req dto.LLMTestRequest) (*dto.LLMTestResponse, error)
}

// LLMSettingsHandler exposes runtime provider configuration endpoints.
type LLMSettingsHandler struct {
	service llmSettingsService
}

// NewLLMSettingsHandler builds a new handler.
func NewLLMSettingsHandler(service llmSettingsService) *LLMSettingsHandler {
	return &LLMSettingsHandler{service: service}
}

// Get godoc
// @Summary Get LLM provider settings
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/settings/llm [get]
func (h *LLMSettingsHandler) Get(c *gin.Context) {
	resp, err := h.service.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Update godoc
// @Summary Update LLM provider settings
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.UpdateLLMConfigRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /admin/settings/llm [put]
func (h *LLMSettingsHandler) Update(c *gin.Context) {
	var req dto.UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid llm settings payload"))
		return
	}
	claims := claimsFromContext(c)
	resp, err := h.service.Update(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Test godoc
// @Summary Probe LLM provider connectivity
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.LLMTestRequest false "Optional overrides"
// @Success 200 {object} response.Envelope
// @Router /admin/settings/llm/test [post]
func (h *LLMSettingsHandler) Test(c *gin.Context) {
	var req dto.LLMTestRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid llm test payload"))
			return
		}
	}
	resp, err := h.service.Test(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
