package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/repair"
	"github.com/aura-crm/backend/pkg/apperr"
)

func TestWriteSummary(t *testing.T) {
	companyID := uuid.New()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sum := &repair.Summary{
		Repaired: 1,
		Skipped:  1,
		Outcomes: []repair.Outcome{
			{UserID: uuid.New(), Email: "jane@acme.com", Result: repair.Repaired, Reason: repair.ReasonEmailDomain, CompanyID: &companyID},
			{UserID: uuid.New(), Email: "bob@shared.io", Result: repair.Skipped, Reason: repair.ReasonAmbiguousDomain},
		},
		StillOrphaned: []uuid.UUID{uuid.New()},
		DryRun:        true,
		StartedAt:     start,
		FinishedAt:    start.Add(1500 * time.Millisecond),
	}

	var buf bytes.Buffer
	writeSummary(&buf, sum)
	out := buf.String()

	assert.Contains(t, out, "jane@acme.com")
	assert.Contains(t, out, companyID.String())
	assert.Contains(t, out, "ambiguous_domain")
	assert.Contains(t, out, "repaired 1, skipped 1, failed 0, still orphaned 1 in 1.5s (dry run)")
}

type finder struct{ u *models.User }

func (f finder) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if id != f.u.ID {
		return nil, apperr.NotFound("user", id)
	}
	return f.u, nil
}

func (f finder) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if email != f.u.Email {
		return nil, &apperr.NotFoundError{Entity: "user", ID: email}
	}
	return f.u, nil
}

func TestLookupUser(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "ann@acme.com", Role: models.RoleCustomer}
	f := finder{u: u}
	ctx := context.Background()

	got, err := lookupUser(ctx, f, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = lookupUser(ctx, f, "  Ann@Acme.com ")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = lookupUser(ctx, f, "nobody@acme.com")
	assert.True(t, apperr.IsNotFound(err))
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{{"repair"}, {"orphans"}, {"tags", "list"}, {"users", "set-role"}} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, repairCmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, tagsListCmd.Flags().Lookup("scope"))
}
