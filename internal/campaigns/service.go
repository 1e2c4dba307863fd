// Package campaigns holds outbound e-mail campaigns synced from the campaign
// provider. Their tags are edited through the tag registry.
package campaigns

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/apperr"
)

// SyncItem is one campaign as reported by the provider.
type SyncItem struct {
	ExternalID string
	Name       string
	Status     models.CampaignStatus
	Stats      models.CampaignStats
}

// Store is the persistence used by Service. *Repository implements it.
type Store interface {
	List(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	Upsert(ctx context.Context, in SyncItem) (*models.Campaign, error)
}

// Service implements campaign reads and provider sync.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a campaigns service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// List returns campaigns, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]models.Campaign, error) {
	var st models.CampaignStatus
	if status != "" {
		var err error
		if st, err = models.ParseCampaignStatus(status); err != nil {
			return nil, err
		}
	}
	return s.store.List(ctx, st)
}

// Get returns a campaign by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return s.store.GetByID(ctx, id)
}

// Sync validates every item and then upserts them in order. Validation fails
// the whole batch before any write. Upserts stop at the first store failure;
// the campaigns written so far are returned along with the error.
func (s *Service) Sync(ctx context.Context, items []SyncItem) ([]models.Campaign, error) {
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		it := &items[i]
		it.ExternalID = strings.TrimSpace(it.ExternalID)
		it.Name = strings.TrimSpace(it.Name)
		field := fmt.Sprintf("campaigns[%d]", i)
		if it.ExternalID == "" {
			return nil, apperr.Invalid(field+".external_id", "required")
		}
		if _, dup := seen[it.ExternalID]; dup {
			return nil, apperr.Invalid(field+".external_id", "duplicate in batch")
		}
		seen[it.ExternalID] = struct{}{}
		if it.Name == "" {
			return nil, apperr.Invalid(field+".name", "required")
		}
		if it.Status == "" {
			it.Status = models.CampaignDraft
		}
		if _, err := models.ParseCampaignStatus(string(it.Status)); err != nil {
			return nil, err
		}
		st := it.Stats
		if st.EmailsSent < 0 || st.Opens < 0 || st.Replies < 0 || st.Bounces < 0 {
			return nil, apperr.Invalid(field+".stats", "negative counter")
		}
	}

	out := make([]models.Campaign, 0, len(items))
	for _, it := range items {
		cp, err := s.store.Upsert(ctx, it)
		if err != nil {
			s.logger.Warn("campaign sync failed", zap.String("external_id", it.ExternalID), zap.Error(err))
			return out, err
		}
		out = append(out, *cp)
	}
	s.logger.Info("campaigns synced", zap.Int("count", len(out)))
	return out, nil
}
