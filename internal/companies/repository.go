package companies

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
)

// ErrSlugTaken is returned when another company already uses the slug.
var ErrSlugTaken = errors.New("company slug already in use")

const pgUniqueViolation = "23505"

const columns = `id, name, slug, COALESCE(email,''), COALESCE(phone,''),
	COALESCE(address_line,''), COALESCE(city,''), COALESCE(country,''), COALESCE(postal_code,''),
	domains, tags, created_at, updated_at`

// Repository handles company persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a companies repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var co models.Company
	err := row.Scan(&co.ID, &co.Name, &co.Slug, &co.Email, &co.Phone,
		&co.AddressLine, &co.City, &co.Country, &co.PostalCode, &co.Domains, &co.Tags, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &co, nil
}

func collect(rows pgx.Rows, op string) ([]models.Company, error) {
	defer rows.Close()
	list := []models.Company{}
	for rows.Next() {
		co, err := scanCompany(rows)
		if err != nil {
			return nil, apperr.Remote(op, err)
		}
		list = append(list, *co)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Remote(op, err)
	}
	return list, nil
}

// Create inserts a company and fills its generated fields.
func (r *Repository) Create(ctx context.Context, co *models.Company) error {
	const q = `INSERT INTO companies (name, slug, email, phone, address_line, city, country, postal_code, domains, tags)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), $9, $10)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, co.Name, co.Slug, co.Email, co.Phone, co.AddressLine, co.City, co.Country,
		co.PostalCode, nonNil(co.Domains), nonNil(co.Tags)).Scan(&co.ID, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrSlugTaken
		}
		return apperr.Remote("create company", err)
	}
	return nil
}

// GetByID returns a company by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	co, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromStore("get company", "company", id, err)
	}
	return co, nil
}

// GetBySlug returns a company by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Company, error) {
	co, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM companies WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "company", ID: slug}
	}
	if err != nil {
		return nil, apperr.Remote("get company by slug", err)
	}
	return co, nil
}

// GetOrCreateBySlug returns the company with slug, creating it with name when absent.
// Concurrent callers converge on the same row.
func (r *Repository) GetOrCreateBySlug(ctx context.Context, slug, name string) (*models.Company, error) {
	const q = `INSERT INTO companies (name, slug) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING ` + columns
	co, err := scanCompany(r.pool.QueryRow(ctx, q, name, slug))
	if err != nil {
		return nil, apperr.Remote("get or create company", err)
	}
	return co, nil
}

// List returns companies ordered by name. A non-empty query filters on name or slug.
func (r *Repository) List(ctx context.Context, query string) ([]models.Company, error) {
	q := `SELECT ` + columns + ` FROM companies`
	var args []interface{}
	if query = strings.TrimSpace(query); query != "" {
		q += ` WHERE name ILIKE $1 OR slug ILIKE $1`
		args = append(args, "%"+query+"%")
	}
	q += ` ORDER BY name, slug`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Remote("list companies", err)
	}
	return collect(rows, "list companies")
}

// ListAll returns every company. Used by the visibility resolver.
func (r *Repository) ListAll(ctx context.Context) ([]models.Company, error) {
	return r.List(ctx, "")
}

// FindByDomain returns companies whose domains contain domain.
func (r *Repository) FindByDomain(ctx context.Context, domain string) ([]models.Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM companies WHERE $1 = ANY(domains) ORDER BY created_at`, domain)
	if err != nil {
		return nil, apperr.Remote("find companies by domain", err)
	}
	return collect(rows, "find companies by domain")
}

// Update writes the editable company fields. Tags are left to the tag registry.
func (r *Repository) Update(ctx context.Context, co *models.Company) error {
	const q = `UPDATE companies SET name = $2, email = NULLIF($3,''), phone = NULLIF($4,''),
		address_line = NULLIF($5,''), city = NULLIF($6,''), country = NULLIF($7,''), postal_code = NULLIF($8,''),
		domains = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, co.ID, co.Name, co.Email, co.Phone, co.AddressLine, co.City, co.Country,
		co.PostalCode, nonNil(co.Domains)).Scan(&co.UpdatedAt)
	return apperr.FromStore("update company", "company", co.ID, err)
}

// Delete removes the company; its associations go with it.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return apperr.Remote("delete company", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("company", id)
	}
	return nil
}

// GetTags returns the stored tag set of a company.
func (r *Repository) GetTags(ctx context.Context, id uuid.UUID) ([]string, error) {
	var tags []string
	err := r.pool.QueryRow(ctx, `SELECT tags FROM companies WHERE id = $1`, id).Scan(&tags)
	if err != nil {
		return nil, apperr.FromStore("get company tags", "company", id, err)
	}
	return nonNil(tags), nil
}

// SetTags replaces the tag set of a company.
func (r *Repository) SetTags(ctx context.Context, id uuid.UUID, tags []string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET tags = $2, updated_at = NOW() WHERE id = $1`, id, nonNil(tags))
	if err != nil {
		return apperr.Remote("set company tags", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("company", id)
	}
	return nil
}

// DistinctTags returns every tag used by at least one company, sorted.
func (r *Repository) DistinctTags(ctx context.Context) ([]string, error) {
	return distinctTags(ctx, r.pool, `SELECT DISTINCT unnest(tags) AS t FROM companies ORDER BY t`, "list company tags")
}

func distinctTags(ctx context.Context, pool *pgxpool.Pool, q, op string) ([]string, error) {
	rows, err := pool.Query(ctx, q)
	if err != nil {
		return nil, apperr.Remote(op, err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperr.Remote(op, err)
	}
	return nonNil(tags), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
