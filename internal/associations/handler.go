package associations

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/pkg/response"
)

// Handler handles association HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an associations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// SetAssociationRequest is the body for PUT /companies/:id/users/:userId.
type SetAssociationRequest struct {
	Primary bool   `json:"primary"`
	Role    string `json:"role"`
}

// GetCompanyForUser handles GET /users/:id/company. Customers may only ask about themselves.
// Responds with data null when the user is orphaned.
func (h *Handler) GetCompanyForUser(c *gin.Context) {
	userID, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFrom(c)
	if !actor.IsStaff() && actor.UserID != userID {
		response.Forbidden(c, "not authorized for this user")
		return
	}
	company, err := h.svc.GetCompanyForUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "get company for user", err)
		return
	}
	response.OK(c, company)
}

// ListUsers handles GET /companies/:id/users (staff only).
func (h *Handler) ListUsers(c *gin.Context) {
	companyID, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	members, err := h.svc.ListUsersForCompany(c.Request.Context(), companyID)
	if err != nil {
		h.fail(c, "list users for company", err)
		return
	}
	response.OK(c, members)
}

// Set handles PUT /companies/:id/users/:userId (staff only).
func (h *Handler) Set(c *gin.Context) {
	companyID, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := middleware.ParamUUID(c, "userId")
	if !ok {
		return
	}
	var body SetAssociationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.svc.SetAssociation(c.Request.Context(), userID, companyID, SetOptions{Primary: body.Primary, Role: body.Role})
	if err != nil {
		h.fail(c, "set association", err)
		return
	}
	response.OK(c, a)
}

// Remove handles DELETE /companies/:id/users/:userId (staff only).
func (h *Handler) Remove(c *gin.Context) {
	companyID, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := middleware.ParamUUID(c, "userId")
	if !ok {
		return
	}
	if err := h.svc.RemoveAssociation(c.Request.Context(), userID, companyID); err != nil {
		h.fail(c, "remove association", err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	response.Error(c, err)
}
