package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
)

// ErrEmailTaken is returned when registering an e-mail that already exists.
var ErrEmailTaken = errors.New("email already registered")

// The primary company is derived from company_users, never stored on users.
const selectUser = `SELECT u.id, u.email, u.password_hash, u.full_name, u.role,
	(SELECT cu.company_id FROM company_users cu WHERE cu.user_id = u.id AND cu.is_primary),
	u.created_at, u.updated_at
	FROM users u`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &role, &u.CompanyID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if u.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
	if err != nil {
		return nil, apperr.FromStore("get user", "user", id, err)
	}
	return u, nil
}

// GetByEmail returns a user by e-mail, including the password hash.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE u.email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "user", ID: email}
	}
	if err != nil {
		return nil, apperr.Remote("get user by email", err)
	}
	return u, nil
}

// List returns all users ordered by name and e-mail.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx, selectUser+` ORDER BY u.full_name, u.email`)
	if err != nil {
		return nil, apperr.Remote("list users", err)
	}
	defer rows.Close()
	list := []models.UserPublic{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Remote("scan user", err)
		}
		list = append(list, u.ToPublic())
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Remote("list users", err)
	}
	return list, nil
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, full_name, role, NULL::uuid, created_at, updated_at`
	u, err := scanUser(r.pool.QueryRow(ctx, q, email, passwordHash, fullName, string(role)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Remote("create user", err)
	}
	return u, nil
}

// UpdateRole changes the platform role of a user.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.User, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
	if err != nil {
		return nil, apperr.Remote("update user role", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("user", id)
	}
	return r.GetByID(ctx, id)
}
