package tags

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/pkg/apperr"
)

type memStore struct {
	entity string
	tags   map[uuid.UUID][]string
	writes int
}

func newMemStore(entity string, ids ...uuid.UUID) *memStore {
	m := &memStore{entity: entity, tags: map[uuid.UUID][]string{}}
	for _, id := range ids {
		m.tags[id] = []string{}
	}
	return m
}

func (m *memStore) GetTags(_ context.Context, id uuid.UUID) ([]string, error) {
	t, ok := m.tags[id]
	if !ok {
		return nil, apperr.NotFound(m.entity, id)
	}
	return t, nil
}

func (m *memStore) SetTags(_ context.Context, id uuid.UUID, tags []string) error {
	if _, ok := m.tags[id]; !ok {
		return apperr.NotFound(m.entity, id)
	}
	m.writes++
	m.tags[id] = tags
	return nil
}

func (m *memStore) DistinctTags(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, list := range m.tags {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

type recordingNotifier struct{ sent []string }

func (r *recordingNotifier) Notify(room, event string, _ interface{}) {
	r.sent = append(r.sent, room+"|"+event)
}

type delivery struct {
	event   string
	payload interface{}
}

// memberNotifier keeps what reaches one connected client, given its rooms.
type memberNotifier struct {
	rooms    map[string]bool
	received []delivery
}

func newMemberNotifier(rooms []string) *memberNotifier {
	m := &memberNotifier{rooms: map[string]bool{}}
	for _, room := range rooms {
		m.rooms[room] = true
	}
	return m
}

func (m *memberNotifier) Notify(room, event string, payload interface{}) {
	if m.rooms[room] {
		m.received = append(m.received, delivery{event, payload})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{nil, []string{}},
		{[]string{"a", "b", "a"}, []string{"a", "b"}},
		{[]string{"  Enterprise ", "enterprise", "ENTERPRISE"}, []string{"enterprise"}},
		{[]string{"zeta", "Alpha", "mid"}, []string{"alpha", "mid", "zeta"}},
		{[]string{"Straße", "STRASSE"}, []string{"strasse"}},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%q", tc.in)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, in := range [][]string{
		{""},
		{"ok", "   "},
		{strings.Repeat("x", MaxTagLength+1)},
	} {
		_, err := Normalize(in)
		assert.True(t, apperr.IsValidation(err), "%q", in)
	}

	got, err := Normalize([]string{strings.Repeat("é", MaxTagLength)})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSetTags_DedupesOnReadBack(t *testing.T) {
	id := uuid.New()
	companies := newMemStore("company", id)
	reg := NewRegistry(companies, newMemStore("campaign"), nil, nil)
	ctx := context.Background()

	_, err := reg.SetTags(ctx, KindCompany, id, []string{"a", "b", "a"})
	require.NoError(t, err)

	got, err := reg.GetTags(ctx, KindCompany, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSetTags_EmptyTagLeavesPreviousSet(t *testing.T) {
	id := uuid.New()
	campaigns := newMemStore("campaign", id)
	reg := NewRegistry(newMemStore("company"), campaigns, nil, nil)
	ctx := context.Background()

	_, err := reg.SetTags(ctx, KindCampaign, id, []string{"vip"})
	require.NoError(t, err)

	_, err = reg.SetTags(ctx, KindCampaign, id, []string{""})
	assert.True(t, apperr.IsValidation(err))

	got, err := reg.GetTags(ctx, KindCampaign, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, got)
	assert.Equal(t, 1, campaigns.writes)
}

func TestSetTags_MissingEntity(t *testing.T) {
	reg := NewRegistry(newMemStore("company"), newMemStore("campaign"), nil, nil)

	_, err := reg.SetTags(context.Background(), KindCompany, uuid.New(), []string{"a"})
	assert.True(t, apperr.IsNotFound(err))

	_, err = reg.GetTags(context.Background(), KindCampaign, uuid.New())
	assert.True(t, apperr.IsNotFound(err))
}

func TestSetTags_UnknownKind(t *testing.T) {
	reg := NewRegistry(newMemStore("company"), newMemStore("campaign"), nil, nil)

	_, err := reg.SetTags(context.Background(), EntityKind("user"), uuid.New(), []string{"a"})
	assert.True(t, apperr.IsValidation(err))
}

func TestSetTags_Notifies(t *testing.T) {
	company, campaign := uuid.New(), uuid.New()
	n := &recordingNotifier{}
	reg := NewRegistry(newMemStore("company", company), newMemStore("campaign", campaign), n, nil)
	ctx := context.Background()

	_, err := reg.SetTags(ctx, KindCompany, company, []string{"a"})
	require.NoError(t, err)
	_, err = reg.SetTags(ctx, KindCampaign, campaign, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		realtime.RoomAdmin + "|" + EventTagsUpdated,
		realtime.CompanyRoom(company) + "|" + EventTagsUpdated,
		realtime.RoomAdmin + "|" + EventTagsUpdated,
		realtime.RoomAll + "|" + EventCampaignsChanged,
	}, n.sent)
}

func TestSetTags_CampaignTagsNotPushedToCustomers(t *testing.T) {
	company, campaign := uuid.New(), uuid.New()
	customer := models.Actor{UserID: uuid.New(), Role: models.RoleCustomer}
	client := newMemberNotifier(realtime.RoomsFor(customer, &company))
	reg := NewRegistry(newMemStore("company", company), newMemStore("campaign", campaign), client, nil)
	ctx := context.Background()

	_, err := reg.SetTags(ctx, KindCompany, company, []string{"retail"})
	require.NoError(t, err)
	client.received = nil

	_, err = reg.SetTags(ctx, KindCampaign, campaign, []string{"vip-only"})
	require.NoError(t, err)

	require.Len(t, client.received, 1)
	assert.Equal(t, EventCampaignsChanged, client.received[0].event)
	assert.Nil(t, client.received[0].payload)

	staff := newMemberNotifier(realtime.RoomsFor(models.Actor{UserID: uuid.New(), Role: models.RoleManager}, nil))
	reg = NewRegistry(newMemStore("company"), newMemStore("campaign", campaign), staff, nil)
	_, err = reg.SetTags(ctx, KindCampaign, campaign, []string{"vip-only"})
	require.NoError(t, err)
	require.Len(t, staff.received, 2)
	assert.Equal(t, Update{Kind: KindCampaign, ID: campaign, Tags: []string{"vip-only"}}, staff.received[0].payload)
}

func TestListAvailableTags(t *testing.T) {
	c1, c2, k1 := uuid.New(), uuid.New(), uuid.New()
	companies := newMemStore("company", c1, c2)
	campaigns := newMemStore("campaign", k1)
	reg := NewRegistry(companies, campaigns, nil, nil)
	ctx := context.Background()

	_, err := reg.SetTags(ctx, KindCompany, c1, []string{"retail", "emea"})
	require.NoError(t, err)
	_, err = reg.SetTags(ctx, KindCompany, c2, []string{"emea"})
	require.NoError(t, err)
	_, err = reg.SetTags(ctx, KindCampaign, k1, []string{"apac", "retail"})
	require.NoError(t, err)

	got, err := reg.ListAvailableTags(ctx, ScopeCompany)
	require.NoError(t, err)
	assert.Equal(t, []string{"emea", "retail"}, got)

	got, err = reg.ListAvailableTags(ctx, ScopeCampaign)
	require.NoError(t, err)
	assert.Equal(t, []string{"apac", "retail"}, got)

	got, err = reg.ListAvailableTags(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"apac", "emea", "retail"}, got)

	_, err = reg.ListAvailableTags(ctx, Scope("users"))
	assert.True(t, apperr.IsValidation(err))
}

func TestHandler_SetAndList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := uuid.New()
	reg := NewRegistry(newMemStore("company", id), newMemStore("campaign"), nil, nil)
	h := NewHandler(reg, nil)
	r := gin.New()
	r.PUT("/companies/:id/tags", h.Set(KindCompany))
	r.GET("/tags", h.List)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/companies/"+id.String()+"/tags", bytes.NewBufferString(`{"tags":[" VIP ","vip","emea"]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"tags":["emea","vip"]}}`, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/companies/"+id.String()+"/tags", bytes.NewBufferString(`{"tags":[""]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tags?scope=company", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":["emea","vip"]}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tags?scope=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
