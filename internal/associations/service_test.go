package associations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/pkg/apperr"
)

// memStore mirrors the repository semantics: one row per (company, user),
// and a primary upsert demotes the user's other primary rows.
type memStore struct {
	companies map[uuid.UUID]*models.Company
	rows      []*models.CompanyUser
}

func newMemStore() *memStore {
	return &memStore{companies: map[uuid.UUID]*models.Company{}}
}

func (m *memStore) PrimaryCompany(_ context.Context, userID uuid.UUID) (*models.Company, error) {
	for _, r := range m.rows {
		if r.UserID == userID && r.IsPrimary {
			return m.companies[r.CompanyID], nil
		}
	}
	return nil, nil
}

func (m *memStore) ListMembers(_ context.Context, companyID uuid.UUID) ([]models.CompanyMember, error) {
	var out []models.CompanyMember
	for _, r := range m.rows {
		if r.CompanyID == companyID {
			out = append(out, models.CompanyMember{UserID: r.UserID, Role: r.Role, IsPrimary: r.IsPrimary})
		}
	}
	return out, nil
}

func (m *memStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.CompanyUser, error) {
	var out []models.CompanyUser
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, userID, companyID uuid.UUID, role string, primary bool) (*models.CompanyUser, error) {
	var row *models.CompanyUser
	for _, r := range m.rows {
		if r.UserID != userID {
			continue
		}
		if r.CompanyID == companyID {
			row = r
		} else if primary {
			r.IsPrimary = false
		}
	}
	if row == nil {
		row = &models.CompanyUser{ID: uuid.New(), UserID: userID, CompanyID: companyID, CreatedAt: time.Now()}
		m.rows = append(m.rows, row)
	}
	row.Role = role
	row.IsPrimary = primary
	cp := *row
	return &cp, nil
}

func (m *memStore) Remove(_ context.Context, userID, companyID uuid.UUID) error {
	for i, r := range m.rows {
		if r.UserID == userID && r.CompanyID == companyID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return &apperr.NotFoundError{Entity: "association"}
}

type lookup struct {
	users     map[uuid.UUID]*models.User
	companies map[uuid.UUID]*models.Company
}

type userLookup struct{ *lookup }

func (l userLookup) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := l.users[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user", id)
}

type companyLookup struct{ *lookup }

func (l companyLookup) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	if c, ok := l.companies[id]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("company", id)
}

type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) Notify(room, event string, _ interface{}) {
	r.events = append(r.events, room+"|"+event)
}

type fixture struct {
	svc      *Service
	store    *memStore
	notifier *recordingNotifier
	user     uuid.UUID
	c1, c2   uuid.UUID
}

func newFixture() *fixture {
	store := newMemStore()
	l := &lookup{users: map[uuid.UUID]*models.User{}, companies: store.companies}
	f := &fixture{store: store, notifier: &recordingNotifier{}, user: uuid.New(), c1: uuid.New(), c2: uuid.New()}
	l.users[f.user] = &models.User{ID: f.user, Email: "jane@acme.com", Role: models.RoleCustomer}
	store.companies[f.c1] = &models.Company{ID: f.c1, Name: "Acme"}
	store.companies[f.c2] = &models.Company{ID: f.c2, Name: "Globex"}
	f.svc = NewService(store, userLookup{l}, companyLookup{l}, f.notifier, nil)
	return f
}

func TestSetAssociation_SecondPrimaryDemotesFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SetAssociation(ctx, f.user, f.c1, SetOptions{Primary: true})
	require.NoError(t, err)
	_, err = f.svc.SetAssociation(ctx, f.user, f.c2, SetOptions{Primary: true})
	require.NoError(t, err)

	company, err := f.svc.GetCompanyForUser(ctx, f.user)
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, f.c2, company.ID)

	rows, err := f.svc.ListForUser(ctx, f.user)
	require.NoError(t, err)
	primaries := 0
	for _, r := range rows {
		if r.IsPrimary {
			primaries++
		}
		if r.CompanyID == f.c1 {
			assert.False(t, r.IsPrimary)
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestSetAssociation_DefaultsRoleAndNotifies(t *testing.T) {
	f := newFixture()

	a, err := f.svc.SetAssociation(context.Background(), f.user, f.c1, SetOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.CompanyRoleMember, a.Role)
	assert.False(t, a.IsPrimary)
	assert.Equal(t, []string{
		realtime.RoomAdmin + "|" + EventAssociationChanged,
		realtime.CompanyRoom(f.c1) + "|" + EventAssociationChanged,
	}, f.notifier.events)
}

func TestSetAssociation_MissingEntities(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SetAssociation(ctx, uuid.New(), f.c1, SetOptions{Primary: true})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.SetAssociation(ctx, f.user, uuid.New(), SetOptions{Primary: true})
	assert.True(t, apperr.IsNotFound(err))

	assert.Empty(t, f.store.rows)
	assert.Empty(t, f.notifier.events)
}

func TestSetAssociation_RejectsUnknownRole(t *testing.T) {
	f := newFixture()

	_, err := f.svc.SetAssociation(context.Background(), f.user, f.c1, SetOptions{Role: "ceo"})
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, f.store.rows)
}

func TestGetCompanyForUser_OrphanReturnsNil(t *testing.T) {
	f := newFixture()

	company, err := f.svc.GetCompanyForUser(context.Background(), f.user)
	require.NoError(t, err)
	assert.Nil(t, company)
}

func TestRemoveAssociation_LeavesUserOrphaned(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.SetAssociation(ctx, f.user, f.c1, SetOptions{Primary: true})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveAssociation(ctx, f.user, f.c1))

	company, err := f.svc.GetCompanyForUser(ctx, f.user)
	require.NoError(t, err)
	assert.Nil(t, company)
	assert.True(t, apperr.IsNotFound(f.svc.RemoveAssociation(ctx, f.user, f.c1)))
}

func TestListUsersForCompany_UnknownCompany(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ListUsersForCompany(context.Background(), uuid.New())
	assert.True(t, apperr.IsNotFound(err))
}
