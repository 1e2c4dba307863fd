package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/models"
)

type tokenFunc func(string) (models.Actor, error)

func (f tokenFunc) Actor(token string) (models.Actor, error) { return f(token) }

func TestJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := models.Actor{UserID: uuid.New(), Email: "mia@crm.io", Role: models.RoleManager}
	tokens := tokenFunc(func(tok string) (models.Actor, error) {
		if tok == "good" {
			return manager, nil
		}
		return models.Actor{}, errors.New("bad token")
	})

	r := gin.New()
	r.GET("/who", JWT(tokens), func(c *gin.Context) {
		a := ActorFrom(c)
		assert.Equal(t, manager, a)
		assert.Equal(t, manager.UserID, c.MustGet(ContextUserID))
		c.String(http.StatusOK, a.Email)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	route := func(actor *models.Actor, guard gin.HandlerFunc) int {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) {
			if actor != nil {
				SetActor(c, *actor)
			}
		}, guard, func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w.Code
	}
	actor := func(role models.Role) *models.Actor { return &models.Actor{UserID: uuid.New(), Role: role} }

	assert.Equal(t, http.StatusUnauthorized, route(nil, RequireStaff()))
	assert.Equal(t, http.StatusOK, route(actor(models.RoleAdmin), RequireStaff()))
	assert.Equal(t, http.StatusOK, route(actor(models.RoleManager), RequireStaff()))
	assert.Equal(t, http.StatusForbidden, route(actor(models.RoleCustomer), RequireStaff()))
	assert.Equal(t, http.StatusForbidden, route(actor(models.RoleManager), RequireRole(models.RoleAdmin)))
}

func TestParamUUID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := uuid.New()
	r := gin.New()
	r.GET("/things/:id", func(c *gin.Context) {
		got, ok := ParamUUID(c, "id")
		if !ok {
			return
		}
		c.String(http.StatusOK, got.String())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/"+id.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitLogin_NoRedisPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", RateLimitLogin(nil, 1, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://app.local/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://app.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
