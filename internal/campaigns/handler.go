package campaigns

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/response"
)

// Viewer decides whether a user may see a campaign.
type Viewer interface {
	CanUserView(ctx context.Context, userID, campaignID uuid.UUID) (bool, error)
}

// Handler handles campaign HTTP endpoints.
type Handler struct {
	svc    *Service
	viewer Viewer
	logger *zap.Logger
}

// NewHandler creates a campaigns handler.
func NewHandler(svc *Service, viewer Viewer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, viewer: viewer, logger: logger}
}

// SyncCampaign is one entry of the sync body.
type SyncCampaign struct {
	ExternalID string               `json:"external_id"`
	Name       string               `json:"name"`
	Status     string               `json:"status"`
	Stats      models.CampaignStats `json:"stats"`
}

// SyncRequest is the body for POST /campaigns/sync.
type SyncRequest struct {
	Campaigns []SyncCampaign `json:"campaigns" binding:"required"`
}

// List handles GET /campaigns (staff only). Optional ?status= filter.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, "list campaigns", err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /campaigns/:id. Customers only get campaigns visible to their company.
func (h *Handler) Get(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFrom(c)
	if !actor.IsStaff() {
		visible, err := h.viewer.CanUserView(c.Request.Context(), actor.UserID, id)
		if err != nil {
			h.fail(c, "check campaign visibility", err)
			return
		}
		if !visible {
			// hidden campaigns are indistinguishable from missing ones
			response.NotFound(c, "campaign "+id.String()+" not found")
			return
		}
	}
	cp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get campaign", err)
		return
	}
	response.OK(c, cp)
}

// Sync handles POST /campaigns/sync (admin only).
func (h *Handler) Sync(c *gin.Context) {
	var body SyncRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	items := make([]SyncItem, 0, len(body.Campaigns))
	for _, sc := range body.Campaigns {
		items = append(items, SyncItem{
			ExternalID: sc.ExternalID,
			Name:       sc.Name,
			Status:     models.CampaignStatus(sc.Status),
			Stats:      sc.Stats,
		})
	}
	list, err := h.svc.Sync(c.Request.Context(), items)
	if err != nil {
		h.fail(c, "sync campaigns", err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	response.Error(c, err)
}
