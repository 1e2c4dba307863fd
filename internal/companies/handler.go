package companies

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/response"
)

// PrimaryLookup resolves the primary company of a user.
type PrimaryLookup interface {
	GetCompanyForUser(ctx context.Context, userID uuid.UUID) (*models.Company, error)
}

// Handler handles company HTTP endpoints.
type Handler struct {
	svc     *Service
	primary PrimaryLookup
	logger  *zap.Logger
}

// NewHandler creates a companies handler.
func NewHandler(svc *Service, primary PrimaryLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, primary: primary, logger: logger}
}

// CreateCompanyRequest is the body for POST /companies.
type CreateCompanyRequest struct {
	Name        string   `json:"name" binding:"required"`
	Slug        string   `json:"slug" binding:"required"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	AddressLine string   `json:"address_line"`
	City        string   `json:"city"`
	Country     string   `json:"country"`
	PostalCode  string   `json:"postal_code"`
	Domains     []string `json:"domains"`
}

// UpdateCompanyRequest is the body for PATCH /companies/:id.
type UpdateCompanyRequest struct {
	Name        *string   `json:"name"`
	Email       *string   `json:"email"`
	Phone       *string   `json:"phone"`
	AddressLine *string   `json:"address_line"`
	City        *string   `json:"city"`
	Country     *string   `json:"country"`
	PostalCode  *string   `json:"postal_code"`
	Domains     *[]string `json:"domains"`
}

// Create handles POST /companies (staff only).
func (h *Handler) Create(c *gin.Context) {
	var body CreateCompanyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	co, err := h.svc.Create(c.Request.Context(), CreateParams{
		Name:        body.Name,
		Slug:        body.Slug,
		Email:       body.Email,
		Phone:       body.Phone,
		AddressLine: body.AddressLine,
		City:        body.City,
		Country:     body.Country,
		PostalCode:  body.PostalCode,
		Domains:     body.Domains,
	})
	if errors.Is(err, ErrSlugTaken) {
		response.Conflict(c, "A company with this slug already exists")
		return
	}
	if err != nil {
		h.fail(c, "create company", err)
		return
	}
	response.Created(c, co)
}

// List handles GET /companies (staff only). Optional ?q= filters by name or slug.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, "list companies", err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /companies/:id. Customers may only read their own primary company.
func (h *Handler) Get(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	if !h.authorize(c, id) {
		return
	}
	co, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get company", err)
		return
	}
	response.OK(c, co)
}

// Update handles PATCH /companies/:id (staff only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	var body UpdateCompanyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	co, err := h.svc.Update(c.Request.Context(), id, UpdateParams{
		Name:        body.Name,
		Email:       body.Email,
		Phone:       body.Phone,
		AddressLine: body.AddressLine,
		City:        body.City,
		Country:     body.Country,
		PostalCode:  body.PostalCode,
		Domains:     body.Domains,
	})
	if err != nil {
		h.fail(c, "update company", err)
		return
	}
	response.OK(c, co)
}

// Delete handles DELETE /companies/:id?confirm=<slug> (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := middleware.ParamUUID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, c.Query("confirm")); err != nil {
		h.fail(c, "delete company", err)
		return
	}
	response.NoContent(c)
}

// authorize lets staff through and limits customers to their primary company.
// It writes the error response itself when access is denied.
func (h *Handler) authorize(c *gin.Context, companyID uuid.UUID) bool {
	return CanAccess(c, h.primary, companyID, h.logger)
}

// CanAccess reports whether the actor may read companyID, writing a 403 or
// error response when not.
func CanAccess(c *gin.Context, primary PrimaryLookup, companyID uuid.UUID, logger *zap.Logger) bool {
	actor := middleware.ActorFrom(c)
	if actor.IsStaff() {
		return true
	}
	co, err := primary.GetCompanyForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		logger.Warn("resolve primary company", zap.Error(err))
		response.Error(c, err)
		return false
	}
	if co == nil || co.ID != companyID {
		response.Forbidden(c, "not authorized for this company")
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	response.Error(c, err)
}
