package campaigns

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
)

// memStore keeps campaigns keyed by external ID and preserves tags on update.
type memStore struct {
	byExternal map[string]*models.Campaign
	failOn     string
}

func newMemStore() *memStore { return &memStore{byExternal: map[string]*models.Campaign{}} }

func (m *memStore) List(_ context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, cp := range m.byExternal {
		if status == "" || cp.Status == status {
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	for _, cp := range m.byExternal {
		if cp.ID == id {
			c := *cp
			return &c, nil
		}
	}
	return nil, apperr.NotFound("campaign", id)
}

func (m *memStore) Upsert(_ context.Context, in SyncItem) (*models.Campaign, error) {
	if in.ExternalID == m.failOn {
		return nil, apperr.Remote("upsert campaign", errors.New("connection reset"))
	}
	cp, ok := m.byExternal[in.ExternalID]
	if !ok {
		cp = &models.Campaign{ID: uuid.New(), ExternalID: in.ExternalID, Tags: []string{}}
		m.byExternal[in.ExternalID] = cp
	}
	cp.Name, cp.Status, cp.Stats = in.Name, in.Status, in.Stats
	c := *cp
	return &c, nil
}

func TestSync_UpsertKeepsTags(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Sync(ctx, []SyncItem{{ExternalID: "ext-1", Name: "Spring launch"}})
	require.NoError(t, err)
	store.byExternal["ext-1"].Tags = []string{"enterprise"}

	got, err := svc.Sync(ctx, []SyncItem{{
		ExternalID: " ext-1 ",
		Name:       "Spring launch v2",
		Status:     models.CampaignActive,
		Stats:      models.CampaignStats{EmailsSent: 120, Opens: 40},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Spring launch v2", got[0].Name)
	assert.Equal(t, models.CampaignActive, got[0].Status)
	assert.Equal(t, []string{"enterprise"}, got[0].Tags)
	assert.Len(t, store.byExternal, 1)
}

func TestSync_DefaultsToDraft(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	got, err := svc.Sync(context.Background(), []SyncItem{{ExternalID: "ext-1", Name: "Welcome"}})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, got[0].Status)
}

func TestSync_ValidatesBeforeWriting(t *testing.T) {
	cases := map[string][]SyncItem{
		"missing external id": {{Name: "x"}},
		"missing name":        {{ExternalID: "a"}},
		"unknown status":      {{ExternalID: "a", Name: "x", Status: "archived"}},
		"negative stats":      {{ExternalID: "a", Name: "x", Stats: models.CampaignStats{Bounces: -1}}},
		"duplicate":           {{ExternalID: "a", Name: "x"}, {ExternalID: "a", Name: "y"}},
		"late invalid entry":  {{ExternalID: "a", Name: "x"}, {ExternalID: "b"}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			_, err := NewService(store, nil).Sync(context.Background(), items)
			assert.True(t, apperr.IsValidation(err))
			assert.Empty(t, store.byExternal)
		})
	}
}

func TestSync_StoreFailureReturnsWrittenPrefix(t *testing.T) {
	store := newMemStore()
	store.failOn = "b"

	got, err := NewService(store, nil).Sync(context.Background(), []SyncItem{
		{ExternalID: "a", Name: "x"}, {ExternalID: "b", Name: "y"}, {ExternalID: "c", Name: "z"},
	})
	assert.True(t, apperr.IsRemote(err))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ExternalID)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	_, err := NewService(newMemStore(), nil).List(context.Background(), "archived")
	assert.True(t, apperr.IsValidation(err))
}

type viewerFunc func(ctx context.Context, userID, campaignID uuid.UUID) (bool, error)

func (f viewerFunc) CanUserView(ctx context.Context, userID, campaignID uuid.UUID) (bool, error) {
	return f(ctx, userID, campaignID)
}

func TestHandler_GetHidesInvisibleCampaigns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	visible := &models.Campaign{ID: uuid.New(), ExternalID: "v", Tags: []string{}}
	hidden := &models.Campaign{ID: uuid.New(), ExternalID: "h", Tags: []string{"vip"}}
	store.byExternal["v"], store.byExternal["h"] = visible, hidden
	viewer := viewerFunc(func(_ context.Context, _, id uuid.UUID) (bool, error) { return id == visible.ID, nil })

	for _, tc := range []struct {
		role models.Role
		id   uuid.UUID
		want int
	}{
		{models.RoleCustomer, visible.ID, http.StatusOK},
		{models.RoleCustomer, hidden.ID, http.StatusNotFound},
		{models.RoleManager, hidden.ID, http.StatusOK},
	} {
		r := gin.New()
		actor := models.Actor{UserID: uuid.New(), Role: tc.role}
		r.Use(func(c *gin.Context) { middleware.SetActor(c, actor) })
		r.GET("/campaigns/:id", NewHandler(NewService(store, nil), viewer, nil).Get)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/"+tc.id.String(), nil))
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.role, tc.id)
	}
}
