package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/socratic-tutor-api/internal/dto"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
	"github.com/noah-isme/socratic-tutor-api/pkg/response"
)

type promptService interface {
	Create(ctx context.Context, req dto.CreatePromptRequest, actor *models.JWTClaims) (*dto.PromptInfo, error)
	Activate(ctx context.Context, promptID string, actor *models.JWTClaims) (*dto.ActivatePromptResponse, error)
	History(ctx context.Context, filter models.PromptHistoryFilter) ([]dto.PromptInfo, *models.Pagination, error)
	Effective(ctx context.Context, classID string) (*dto.EffectivePromptResponse, error)
}

// PromptHandler exposes prompt configuration endpoints.
type PromptHandler struct {
	service promptService
}

// NewPromptHandler builds a new handler.
func NewPromptHandler(service promptService) *PromptHandler {
	return &PromptHandler{service: service}
}

// Create godoc
// @Summary Create a prompt version
// @Tags Prompts
// @Accept json
// @Produce json
// @Param payload body dto.CreatePromptRequest true "Prompt payload"
// @Success 201 {object} response.Envelope
// @Router /prompts [post]
func (h *PromptHandler) Create(c *gin.Context) {
	var req dto.CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid prompt payload"))
		return
	}
	claims := claimsFromContext(c)
	info, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, info)
}

// Activate godoc
// @Summary Activate a prompt version
// @Tags Prompts
// @Produce json
// @Param id path string true "Prompt ID"
// @Success 200 {object} response.Envelope
// @Router /prompts/{id}/activate [post]
func (h *PromptHandler) Activate(c *gin.Context) {
	claims := claimsFromContext(c)
	resp, err := h.service.Activate(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// History godoc
// @Summary List prompt versions for a scope
// @Tags Prompts
// @Produce json
// @Param scope_type query string true "GLOBAL or CLASS"
// @Param class_id query string false "Class ID for CLASS scope"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /prompts/history [get]
func (h *PromptHandler) History(c *gin.Context) {
	filter := models.PromptHistoryFilter{
		ScopeType: models.ScopeType(c.Query("scope_type")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
	}
	if classID := c.Query("class_id"); classID != "" {
		filter.ClassID = &classID
	}
	if filter.ScopeType != models.ScopeGlobal && filter.ScopeType != models.ScopeClass {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "scope_type must be GLOBAL or CLASS"))
		return
	}

	items, pagination, err := h.service.History(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Effective godoc
// @Summary Resolve the effective prompt for a class
// @Tags Prompts
// @Produce json
// @Param class_id query string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /prompts/effective [get]
func (h *PromptHandler) Effective(c *gin.Context) {
	resp, err := h.service.Effective(c.Request.Context(), c.Query("class_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
