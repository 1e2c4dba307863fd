package campaigns

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
)

const columns = `id, external_id, name, status, tags, stats, created_at, updated_at`

// Repository handles campaign persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a campaigns repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// scanCampaign reads a row and parses status and stats into typed values.
func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var (
		cp     models.Campaign
		status string
		stats  []byte
	)
	if err := row.Scan(&cp.ID, &cp.ExternalID, &cp.Name, &status, &cp.Tags, &stats, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if cp.Status, err = models.ParseCampaignStatus(status); err != nil {
		return nil, err
	}
	if cp.Stats, err = models.ParseCampaignStats(stats); err != nil {
		return nil, err
	}
	if cp.Tags == nil {
		cp.Tags = []string{}
	}
	return &cp, nil
}

// List returns campaigns, newest first. A non-empty status filters the list.
func (r *Repository) List(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	q := `SELECT ` + columns + ` FROM campaigns`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Remote("list campaigns", err)
	}
	defer rows.Close()
	list := []models.Campaign{}
	for rows.Next() {
		cp, err := scanCampaign(rows)
		if err != nil {
			return nil, apperr.Remote("scan campaign", err)
		}
		list = append(list, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Remote("list campaigns", err)
	}
	return list, nil
}

// ListAll returns every campaign. Used by the visibility resolver.
func (r *Repository) ListAll(ctx context.Context) ([]models.Campaign, error) {
	return r.List(ctx, "")
}

// GetByID returns a campaign by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	cp, err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromStore("get campaign", "campaign", id, err)
	}
	return cp, nil
}

// Upsert inserts the campaign or updates name, status and stats of the row
// with the same external ID. Tags of an existing campaign are kept.
func (r *Repository) Upsert(ctx context.Context, in SyncItem) (*models.Campaign, error) {
	stats, err := json.Marshal(in.Stats)
	if err != nil {
		return nil, apperr.Invalid("stats", err.Error())
	}
	const q = `INSERT INTO campaigns (external_id, name, status, stats)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE
			SET name = EXCLUDED.name, status = EXCLUDED.status, stats = EXCLUDED.stats, updated_at = NOW()
		RETURNING ` + columns
	cp, err := scanCampaign(r.pool.QueryRow(ctx, q, in.ExternalID, in.Name, string(in.Status), stats))
	if err != nil {
		return nil, apperr.Remote("upsert campaign", err)
	}
	return cp, nil
}

// GetTags returns the stored tag set of a campaign.
func (r *Repository) GetTags(ctx context.Context, id uuid.UUID) ([]string, error) {
	var tags []string
	err := r.pool.QueryRow(ctx, `SELECT tags FROM campaigns WHERE id = $1`, id).Scan(&tags)
	if err != nil {
		return nil, apperr.FromStore("get campaign tags", "campaign", id, err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// SetTags replaces the tag set of a campaign.
func (r *Repository) SetTags(ctx context.Context, id uuid.UUID, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	tag, err := r.pool.Exec(ctx, `UPDATE campaigns SET tags = $2, updated_at = NOW() WHERE id = $1`, id, tags)
	if err != nil {
		return apperr.Remote("set campaign tags", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("campaign", id)
	}
	return nil
}

// DistinctTags returns every tag used by at least one campaign, sorted.
func (r *Repository) DistinctTags(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT unnest(tags) AS t FROM campaigns ORDER BY t`)
	if err != nil {
		return nil, apperr.Remote("list campaign tags", err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperr.Remote("list campaign tags", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
