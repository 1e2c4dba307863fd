// Package companies manages company records: contact metadata, the e-mail
// domains used to match users, and confirmed deletion.
package companies

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/pkg/apperr"
)

// EventCompanyDeleted is published after a company is removed.
const EventCompanyDeleted = "company.deleted"

var (
	// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
	slugRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)
	domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
)

// Store is the persistence used by Service. *Repository implements it.
type Store interface {
	Create(ctx context.Context, co *models.Company) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	List(ctx context.Context, query string) ([]models.Company, error)
	Update(ctx context.Context, co *models.Company) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Notifier fans out change events to connected clients.
type Notifier interface {
	Notify(room, event string, payload interface{})
}

// CreateParams are the fields accepted when creating a company.
type CreateParams struct {
	Name        string
	Slug        string
	Email       string
	Phone       string
	AddressLine string
	City        string
	Country     string
	PostalCode  string
	Domains     []string
}

// UpdateParams holds the fields to change; nil fields are left as they are.
type UpdateParams struct {
	Name        *string
	Email       *string
	Phone       *string
	AddressLine *string
	City        *string
	Country     *string
	PostalCode  *string
	Domains     *[]string
}

// Service implements company management.
type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a companies service. notifier may be nil.
func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Create validates p and inserts the company.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Company, error) {
	slug := strings.ToLower(strings.TrimSpace(p.Slug))
	if !slugRegex.MatchString(slug) {
		return nil, apperr.Invalid("slug", "must be 2-64 chars of lowercase letters, numbers and hyphens")
	}
	name, err := validName(p.Name)
	if err != nil {
		return nil, err
	}
	domains, err := NormalizeDomains(p.Domains)
	if err != nil {
		return nil, err
	}
	co := &models.Company{
		Name:        name,
		Slug:        slug,
		Email:       strings.TrimSpace(p.Email),
		Phone:       strings.TrimSpace(p.Phone),
		AddressLine: strings.TrimSpace(p.AddressLine),
		City:        strings.TrimSpace(p.City),
		Country:     strings.TrimSpace(p.Country),
		PostalCode:  strings.TrimSpace(p.PostalCode),
		Domains:     domains,
		Tags:        []string{},
	}
	if err := s.store.Create(ctx, co); err != nil {
		return nil, err
	}
	s.logger.Info("company created", zap.String("company_id", co.ID.String()), zap.String("slug", co.Slug))
	return co, nil
}

// Get returns a company by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return s.store.GetByID(ctx, id)
}

// List returns companies, optionally filtered by a name or slug fragment.
func (s *Service) List(ctx context.Context, query string) ([]models.Company, error) {
	return s.store.List(ctx, query)
}

// Update applies p to the company. Last write wins.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Company, error) {
	co, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		if co.Name, err = validName(*p.Name); err != nil {
			return nil, err
		}
	}
	if p.Domains != nil {
		if co.Domains, err = NormalizeDomains(*p.Domains); err != nil {
			return nil, err
		}
	}
	assign(&co.Email, p.Email)
	assign(&co.Phone, p.Phone)
	assign(&co.AddressLine, p.AddressLine)
	assign(&co.City, p.City)
	assign(&co.Country, p.Country)
	assign(&co.PostalCode, p.PostalCode)
	if err := s.store.Update(ctx, co); err != nil {
		return nil, err
	}
	return co, nil
}

// Delete removes the company and its associations. confirm must equal the
// company slug; otherwise nothing is deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, confirm string) error {
	co, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if confirm != co.Slug {
		return apperr.Invalid("confirm", "must equal the company slug")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("company deleted", zap.String("company_id", id.String()), zap.String("slug", co.Slug))
	if s.notifier != nil {
		payload := map[string]interface{}{"company_id": id, "slug": co.Slug}
		s.notifier.Notify(realtime.RoomAdmin, EventCompanyDeleted, payload)
		s.notifier.Notify(realtime.CompanyRoom(id), EventCompanyDeleted, payload)
	}
	return nil
}

// NormalizeDomains lower-cases, strips a leading "@", dedupes and sorts domains.
// A blank or malformed entry is a ValidationError.
func NormalizeDomains(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "@")
		if !domainRegex.MatchString(d) {
			return nil, apperr.Invalid("domains", "invalid domain "+strconv.Quote(d))
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func assign(dst, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 255 {
		return "", apperr.Invalid("name", "must be 1-255 characters")
	}
	return name, nil
}
