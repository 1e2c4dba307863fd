// Package associations owns the user ↔ company relation and its
// at-most-one-primary invariant.
package associations

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/pkg/apperr"
)

// Events published on association changes.
const (
	EventAssociationChanged = "association.changed"
)

// Store is the persistence used by Service. *Repository implements it.
type Store interface {
	PrimaryCompany(ctx context.Context, userID uuid.UUID) (*models.Company, error)
	ListMembers(ctx context.Context, companyID uuid.UUID) ([]models.CompanyMember, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CompanyUser, error)
	Upsert(ctx context.Context, userID, companyID uuid.UUID, role string, primary bool) (*models.CompanyUser, error)
	Remove(ctx context.Context, userID, companyID uuid.UUID) error
}

// UserLookup resolves users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// CompanyLookup resolves companies by id.
type CompanyLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
}

// Notifier fans out change events to connected clients.
type Notifier interface {
	Notify(room, event string, payload interface{})
}

// SetOptions controls SetAssociation.
type SetOptions struct {
	Primary bool
	Role    string // defaults to member
}

// Service implements the association store operations.
type Service struct {
	store     Store
	users     UserLookup
	companies CompanyLookup
	notifier  Notifier
	logger    *zap.Logger
}

// NewService creates an association service. notifier may be nil.
func NewService(store Store, users UserLookup, companies CompanyLookup, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, users: users, companies: companies, notifier: notifier, logger: logger}
}

// GetCompanyForUser returns the user's primary company, or nil if the user is orphaned.
func (s *Service) GetCompanyForUser(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	return s.store.PrimaryCompany(ctx, userID)
}

// ListUsersForCompany returns the users associated with a company.
func (s *Service) ListUsersForCompany(ctx context.Context, companyID uuid.UUID) ([]models.CompanyMember, error) {
	if _, err := s.companies.GetByID(ctx, companyID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, companyID)
}

// ListForUser returns all associations of a user.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CompanyUser, error) {
	return s.store.ListForUser(ctx, userID)
}

// SetAssociation upserts the relation between a user and a company. Both must
// exist. With Primary set, the previous primary association of the user is
// demoted atomically with the promotion.
func (s *Service) SetAssociation(ctx context.Context, userID, companyID uuid.UUID, opts SetOptions) (*models.CompanyUser, error) {
	role := opts.Role
	if role == "" {
		role = models.CompanyRoleMember
	}
	if !models.ValidCompanyRole(role) {
		return nil, apperr.Invalid("role", "must be owner, manager or member")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.companies.GetByID(ctx, companyID); err != nil {
		return nil, err
	}
	a, err := s.store.Upsert(ctx, userID, companyID, role, opts.Primary)
	if err != nil {
		s.logger.Warn("set association failed", zap.String("user_id", userID.String()),
			zap.String("company_id", companyID.String()), zap.Error(err))
		return nil, err
	}
	s.logger.Info("association set", zap.String("user_id", userID.String()),
		zap.String("company_id", companyID.String()), zap.String("role", role), zap.Bool("primary", opts.Primary))
	s.notify(companyID, a)
	return a, nil
}

// RemoveAssociation deletes the relation. Removing the primary leaves the user orphaned.
func (s *Service) RemoveAssociation(ctx context.Context, userID, companyID uuid.UUID) error {
	if err := s.store.Remove(ctx, userID, companyID); err != nil {
		return err
	}
	s.logger.Info("association removed", zap.String("user_id", userID.String()), zap.String("company_id", companyID.String()))
	s.notify(companyID, map[string]interface{}{"user_id": userID, "company_id": companyID, "removed": true})
	return nil
}

func (s *Service) notify(companyID uuid.UUID, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(realtime.RoomAdmin, EventAssociationChanged, payload)
	s.notifier.Notify(realtime.CompanyRoom(companyID), EventAssociationChanged, payload)
}
