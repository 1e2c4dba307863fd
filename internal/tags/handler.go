package tags

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/pkg/response"
)

// Handler handles tag HTTP endpoints.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a tags handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

// SetTagsRequest is the body for PUT /companies/:id/tags and PUT /campaigns/:id/tags.
type SetTagsRequest struct {
	Tags []string `json:"tags"`
}

// Set returns the handler for PUT /<kind>s/:id/tags.
func (h *Handler) Set(kind EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.ParamUUID(c, "id")
		if !ok {
			return
		}
		var body SetTagsRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
		saved, err := h.registry.SetTags(c.Request.Context(), kind, id, body.Tags)
		if err != nil {
			h.logger.Warn("set tags", zap.String("kind", string(kind)), zap.Error(err))
			response.Error(c, err)
			return
		}
		response.OK(c, gin.H{"tags": saved})
	}
}

// Get returns the handler for GET /<kind>s/:id/tags.
func (h *Handler) Get(kind EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.ParamUUID(c, "id")
		if !ok {
			return
		}
		list, err := h.registry.GetTags(c.Request.Context(), kind, id)
		if err != nil {
			h.logger.Warn("get tags", zap.String("kind", string(kind)), zap.Error(err))
			response.Error(c, err)
			return
		}
		response.OK(c, gin.H{"tags": list})
	}
}

// List handles GET /tags?scope=company|campaign|all.
func (h *Handler) List(c *gin.Context) {
	scope, err := ParseScope(c.Query("scope"))
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.registry.ListAvailableTags(c.Request.Context(), scope)
	if err != nil {
		h.logger.Warn("list tags", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
