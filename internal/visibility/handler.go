package visibility

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/companies"
	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/pkg/response"
)

// Handler handles visibility HTTP endpoints.
type Handler struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewHandler creates a visibility handler.
func NewHandler(resolver *Resolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{resolver: resolver, logger: logger}
}

// CampaignCompanies handles GET /campaigns/:id/companies (staff only).
func (h *Handler) CampaignCompanies(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	list, err := h.resolver.VisibleCompanies(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "visible companies", err)
		return
	}
	response.OK(c, list)
}

// CompanyCampaigns handles GET /companies/:id/campaigns. Customers may only
// ask about their own company.
func (h *Handler) CompanyCampaigns(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	if !companies.CanAccess(c, h.resolver.primary, id, h.logger) {
		return
	}
	list, err := h.resolver.VisibleCampaigns(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "visible campaigns", err)
		return
	}
	response.OK(c, list)
}

// MyCampaigns handles GET /me/campaigns.
func (h *Handler) MyCampaigns(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	list, err := h.resolver.VisibleToUser(c.Request.Context(), actor.UserID)
	if err != nil {
		h.fail(c, "my campaigns", err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	response.Error(c, err)
}
