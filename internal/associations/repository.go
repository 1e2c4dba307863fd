package associations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
	"github.com/aura-crm/backend/pkg/database"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"

	// default name Postgres gives the company_users.user_id reference
	userForeignKey = "company_users_user_id_fkey"
)

// Repository handles company_users persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an associations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const companyColumns = `c.id, c.name, c.slug, COALESCE(c.email,''), COALESCE(c.phone,''),
	COALESCE(c.address_line,''), COALESCE(c.city,''), COALESCE(c.country,''), COALESCE(c.postal_code,''),
	c.domains, c.tags, c.created_at, c.updated_at`

// PrimaryCompany returns the user's primary company, or nil when the user has none.
func (r *Repository) PrimaryCompany(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	q := `SELECT ` + companyColumns + `
		FROM company_users cu
		INNER JOIN companies c ON c.id = cu.company_id
		WHERE cu.user_id = $1 AND cu.is_primary`
	var co models.Company
	err := r.pool.QueryRow(ctx, q, userID).Scan(&co.ID, &co.Name, &co.Slug, &co.Email, &co.Phone,
		&co.AddressLine, &co.City, &co.Country, &co.PostalCode, &co.Domains, &co.Tags, &co.CreatedAt, &co.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Remote("get primary company", err)
	}
	return &co, nil
}

// ListMembers returns users associated with a company, oldest association first.
func (r *Repository) ListMembers(ctx context.Context, companyID uuid.UUID) ([]models.CompanyMember, error) {
	const q = `SELECT cu.user_id, u.email, u.full_name, u.role, cu.role, cu.is_primary, cu.created_at
		FROM company_users cu
		INNER JOIN users u ON u.id = cu.user_id
		WHERE cu.company_id = $1
		ORDER BY cu.created_at ASC`
	rows, err := r.pool.Query(ctx, q, companyID)
	if err != nil {
		return nil, apperr.Remote("list company members", err)
	}
	defer rows.Close()
	list := []models.CompanyMember{}
	for rows.Next() {
		var m models.CompanyMember
		var userRole string
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &userRole, &m.Role, &m.IsPrimary, &m.AddedAt); err != nil {
			return nil, apperr.Remote("scan company member", err)
		}
		if m.UserRole, err = models.ParseRole(userRole); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Remote("list company members", err)
	}
	return list, nil
}

// ListForUser returns every company association of a user.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CompanyUser, error) {
	const q = `SELECT id, company_id, user_id, role, is_primary, created_at, updated_at
		FROM company_users WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, apperr.Remote("list user associations", err)
	}
	defer rows.Close()
	var list []models.CompanyUser
	for rows.Next() {
		var a models.CompanyUser
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.UserID, &a.Role, &a.IsPrimary, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, apperr.Remote("scan user association", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Remote("list user associations", err)
	}
	return list, nil
}

// ListOrphans returns users that have no primary company association.
func (r *Repository) ListOrphans(ctx context.Context) ([]models.User, error) {
	const q = `SELECT u.id, u.email, u.full_name, u.role, u.created_at, u.updated_at
		FROM users u
		WHERE NOT EXISTS (SELECT 1 FROM company_users cu WHERE cu.user_id = u.id AND cu.is_primary)
		ORDER BY u.created_at ASC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, apperr.Remote("list orphans", err)
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, apperr.Remote("scan orphan", err)
		}
		if u.Role, err = models.ParseRole(role); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Remote("list orphans", err)
	}
	return list, nil
}

// Upsert creates or updates the association. When primary is set, any other
// primary association of the user is demoted in the same transaction.
func (r *Repository) Upsert(ctx context.Context, userID, companyID uuid.UUID, role string, primary bool) (*models.CompanyUser, error) {
	var a models.CompanyUser
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if primary {
			const demote = `UPDATE company_users SET is_primary = FALSE, updated_at = NOW()
				WHERE user_id = $1 AND is_primary AND company_id <> $2`
			if _, err := tx.Exec(ctx, demote, userID, companyID); err != nil {
				return err
			}
		}
		const upsert = `INSERT INTO company_users (company_id, user_id, role, is_primary)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (company_id, user_id) DO UPDATE
				SET role = EXCLUDED.role, is_primary = EXCLUDED.is_primary, updated_at = NOW()
			RETURNING id, company_id, user_id, role, is_primary, created_at, updated_at`
		return tx.QueryRow(ctx, upsert, companyID, userID, role, primary).
			Scan(&a.ID, &a.CompanyID, &a.UserID, &a.Role, &a.IsPrimary, &a.CreatedAt, &a.UpdatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, missingReference(pgErr, userID, companyID)
		}
		return nil, apperr.Remote("set association", err)
	}
	return &a, nil
}

// assignPrimaryIfNoneSQL inserts or promotes a primary row only while the
// user has none. uq_company_users_primary turns a lost race into 23505.
const assignPrimaryIfNoneSQL = `INSERT INTO company_users (company_id, user_id, role, is_primary)
	SELECT $1, $2, $3, TRUE
	WHERE NOT EXISTS (SELECT 1 FROM company_users WHERE user_id = $2 AND is_primary)
	ON CONFLICT (company_id, user_id) DO UPDATE
		SET is_primary = TRUE, updated_at = NOW()
		WHERE NOT EXISTS (SELECT 1 FROM company_users p WHERE p.user_id = EXCLUDED.user_id AND p.is_primary)
	RETURNING id`

// missingReference maps a company_users foreign key violation to the entity
// that does not exist.
func missingReference(pgErr *pgconn.PgError, userID, companyID uuid.UUID) error {
	if pgErr.ConstraintName == userForeignKey {
		return apperr.NotFound("user", userID)
	}
	return apperr.NotFound("company", companyID)
}

// AssignPrimaryIfNone makes companyID the user's primary company only if the
// user has no primary association yet. An existing non-primary row is promoted
// and keeps its role. It reports whether the assignment happened.
func (r *Repository) AssignPrimaryIfNone(ctx context.Context, userID, companyID uuid.UUID, role string) (bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, assignPrimaryIfNoneSQL, companyID, userID, role).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				// a concurrent writer set a primary first
				return false, nil
			case pgForeignKeyViolation:
				return false, missingReference(pgErr, userID, companyID)
			}
		}
		return false, apperr.Remote("assign primary company", err)
	}
	return true, nil
}

// Remove deletes the association. Removing a missing association is a NotFoundError.
func (r *Repository) Remove(ctx context.Context, userID, companyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM company_users WHERE user_id = $1 AND company_id = $2`, userID, companyID)
	if err != nil {
		return apperr.Remote("remove association", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "association", ID: userID.String() + "/" + companyID.String()}
	}
	return nil
}
