package companies

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
)

type memStore struct {
	byID    map[uuid.UUID]*models.Company
	deleted []uuid.UUID
}

func newMemStore() *memStore { return &memStore{byID: map[uuid.UUID]*models.Company{}} }

func (m *memStore) Create(_ context.Context, co *models.Company) error {
	for _, existing := range m.byID {
		if existing.Slug == co.Slug {
			return ErrSlugTaken
		}
	}
	co.ID = uuid.New()
	cp := *co
	m.byID[co.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	co, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("company", id)
	}
	cp := *co
	return &cp, nil
}

func (m *memStore) List(context.Context, string) ([]models.Company, error) {
	var out []models.Company
	for _, co := range m.byID {
		out = append(out, *co)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, co *models.Company) error {
	if _, ok := m.byID[co.ID]; !ok {
		return apperr.NotFound("company", co.ID)
	}
	cp := *co
	m.byID[co.ID] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type recordingNotifier struct{ events []string }

func (r *recordingNotifier) Notify(room, event string, _ interface{}) {
	r.events = append(r.events, room+"|"+event)
}

func TestCreate_NormalizesInput(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)

	co, err := svc.Create(context.Background(), CreateParams{
		Name:    "  Acme Corp ",
		Slug:    "Acme",
		Domains: []string{"ACME.com", "@acme.com", "acme.io"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", co.Name)
	assert.Equal(t, "acme", co.Slug)
	assert.Equal(t, []string{"acme.com", "acme.io"}, co.Domains)
	assert.Equal(t, []string{}, co.Tags)
}

func TestCreate_Validation(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	cases := []CreateParams{
		{Name: "Acme", Slug: "a"},
		{Name: "Acme", Slug: "acme corp"},
		{Name: "   ", Slug: "acme"},
		{Name: "Acme", Slug: "acme", Domains: []string{""}},
		{Name: "Acme", Slug: "acme", Domains: []string{"not a domain"}},
		{Name: "Acme", Slug: "acme", Domains: []string{"localhost"}},
	}
	for _, p := range cases {
		_, err := svc.Create(ctx, p)
		assert.True(t, apperr.IsValidation(err), "%+v", p)
	}
	assert.Empty(t, store.byID)
}

func TestCreate_DuplicateSlug(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{Name: "Acme 2", Slug: "acme"})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestUpdate_OnlyChangesGivenFields(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)
	ctx := context.Background()
	co, err := svc.Create(ctx, CreateParams{Name: "Acme", Slug: "acme", City: "Berlin", Domains: []string{"acme.com"}})
	require.NoError(t, err)

	phone := " +49 30 1234 "
	domains := []string{"acme.de"}
	updated, err := svc.Update(ctx, co.ID, UpdateParams{Phone: &phone, Domains: &domains})
	require.NoError(t, err)

	assert.Equal(t, "Acme", updated.Name)
	assert.Equal(t, "Berlin", updated.City)
	assert.Equal(t, "+49 30 1234", updated.Phone)
	assert.Equal(t, []string{"acme.de"}, updated.Domains)
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, nil)
	ctx := context.Background()
	co, err := svc.Create(ctx, CreateParams{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	err = svc.Delete(ctx, co.ID, "")
	assert.True(t, apperr.IsValidation(err))
	err = svc.Delete(ctx, co.ID, "Acme")
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, store.deleted)

	require.NoError(t, svc.Delete(ctx, co.ID, "acme"))
	assert.Equal(t, []uuid.UUID{co.ID}, store.deleted)
	assert.Len(t, notifier.events, 2)

	assert.True(t, apperr.IsNotFound(svc.Delete(ctx, co.ID, "acme")))
}

func TestNormalizeDomains_Empty(t *testing.T) {
	got, err := NormalizeDomains(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}
