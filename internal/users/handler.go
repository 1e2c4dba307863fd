// Package users serves user reads and admin role management.
package users

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/response"
)

// Store is the user persistence used by Handler. *Repository implements it.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.User, error)
}

// OrphanLister lists users without a primary company.
type OrphanLister interface {
	ListOrphans(ctx context.Context) ([]models.User, error)
}

// Handler handles user HTTP endpoints.
type Handler struct {
	store   Store
	orphans OrphanLister
	logger  *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(store Store, orphans OrphanLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, orphans: orphans, logger: logger}
}

// UpdateRoleRequest is the body for PATCH /users/:id/role.
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list users", err)
		return
	}
	response.OK(c, list)
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	h.respondUser(c, middleware.ActorFrom(c).UserID)
}

// Get handles GET /users/:id. Customers may only read themselves.
func (h *Handler) Get(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFrom(c)
	if !actor.IsStaff() && actor.UserID != id {
		response.Forbidden(c, "not authorized for this user")
		return
	}
	h.respondUser(c, id)
}

// UpdateRole handles PATCH /users/:id/role (admin only).
func (h *Handler) UpdateRole(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	var body UpdateRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	role, err := models.ParseRole(body.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	actor := middleware.ActorFrom(c)
	if actor.UserID == id && role != models.RoleAdmin {
		response.BadRequest(c, "admins cannot demote themselves")
		return
	}
	u, err := h.store.UpdateRole(c.Request.Context(), id, role)
	if err != nil {
		h.fail(c, "update user role", err)
		return
	}
	h.logger.Info("user role changed", zap.String("user_id", id.String()), zap.String("role", string(role)),
		zap.String("by", actor.UserID.String()))
	response.OK(c, u.ToPublic())
}

// Orphans handles GET /admin/users/orphans (staff only).
func (h *Handler) Orphans(c *gin.Context) {
	list, err := h.orphans.ListOrphans(c.Request.Context())
	if err != nil {
		h.fail(c, "list orphans", err)
		return
	}
	out := make([]models.UserPublic, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToPublic())
	}
	response.OK(c, out)
}

func (h *Handler) respondUser(c *gin.Context, id uuid.UUID) {
	u, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get user", err)
		return
	}
	response.OK(c, u.ToPublic())
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	response.Error(c, err)
}
