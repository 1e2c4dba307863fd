package companies

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/internal/models"
)

type primaryFunc func(ctx context.Context, userID uuid.UUID) (*models.Company, error)

func (f primaryFunc) GetCompanyForUser(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	return f(ctx, userID)
}

func newRouter(t *testing.T, actor models.Actor, primary PrimaryLookup) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	h := NewHandler(NewService(store, nil, nil), primary, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { middleware.SetActor(c, actor) })
	r.POST("/companies", h.Create)
	r.GET("/companies/:id", h.Get)
	r.DELETE("/companies/:id", h.Delete)
	return r, store
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAndConflict(t *testing.T) {
	r, _ := newRouter(t, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, nil)

	w := do(r, http.MethodPost, "/companies", map[string]interface{}{"name": "Acme", "slug": "acme", "domains": []string{"acme.com"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Success bool           `json:"success"`
		Data    models.Company `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "acme", resp.Data.Slug)

	w = do(r, http.MethodPost, "/companies", map[string]interface{}{"name": "Other", "slug": "acme"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/companies", map[string]interface{}{"name": "Bad", "slug": "x y"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CustomerSeesOnlyOwnCompany(t *testing.T) {
	own := uuid.New()
	primary := primaryFunc(func(context.Context, uuid.UUID) (*models.Company, error) {
		return &models.Company{ID: own}, nil
	})
	r, store := newRouter(t, models.Actor{UserID: uuid.New(), Role: models.RoleCustomer}, primary)
	store.byID[own] = &models.Company{ID: own, Name: "Acme", Slug: "acme"}
	other := uuid.New()
	store.byID[other] = &models.Company{ID: other, Name: "Globex", Slug: "globex"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/companies/"+own.String(), nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/companies/"+other.String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/companies/nope", nil).Code)
}

func TestHandler_OrphanCustomerIsForbidden(t *testing.T) {
	primary := primaryFunc(func(context.Context, uuid.UUID) (*models.Company, error) { return nil, nil })
	r, store := newRouter(t, models.Actor{UserID: uuid.New(), Role: models.RoleCustomer}, primary)
	id := uuid.New()
	store.byID[id] = &models.Company{ID: id, Slug: "acme"}

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/companies/"+id.String(), nil).Code)
}

func TestHandler_DeleteNeedsConfirm(t *testing.T) {
	r, store := newRouter(t, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, nil)
	id := uuid.New()
	store.byID[id] = &models.Company{ID: id, Slug: "acme"}

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/companies/"+id.String(), nil).Code)
	assert.Contains(t, store.byID, id)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/companies/"+id.String()+"?confirm=acme", nil).Code)
	assert.NotContains(t, store.byID, id)
}
