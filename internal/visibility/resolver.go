// Package visibility decides which campaigns a company may see. A campaign
// without tags is visible to every company; a tagged campaign is visible to a
// company when the two tag sets share at least one tag. Visibility is always
// computed from the current tags and never stored.
package visibility

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/aura-crm/backend/internal/models"
)

// IsVisible reports whether a campaign with campaignTags is visible to a
// company with companyTags. Tags are compared trimmed and case-folded.
func IsVisible(campaignTags, companyTags []string) bool {
	want := tagSet(campaignTags)
	if len(want) == 0 {
		return true
	}
	for t := range tagSet(companyTags) {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}

func tagSet(tags []string) map[string]struct{} {
	fold := cases.Fold()
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			set[fold.String(t)] = struct{}{}
		}
	}
	return set
}

// CampaignStore reads campaigns.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListAll(ctx context.Context) ([]models.Campaign, error)
}

// CompanyStore reads companies.
type CompanyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	ListAll(ctx context.Context) ([]models.Company, error)
}

// PrimaryLookup resolves the primary company of a user.
type PrimaryLookup interface {
	GetCompanyForUser(ctx context.Context, userID uuid.UUID) (*models.Company, error)
}

// Resolver answers visibility questions by reading the stores on every call.
type Resolver struct {
	campaigns CampaignStore
	companies CompanyStore
	primary   PrimaryLookup
}

// NewResolver creates a visibility resolver.
func NewResolver(campaigns CampaignStore, companies CompanyStore, primary PrimaryLookup) *Resolver {
	return &Resolver{campaigns: campaigns, companies: companies, primary: primary}
}

// VisibleCompanies returns the companies that can see the campaign.
func (r *Resolver) VisibleCompanies(ctx context.Context, campaignID uuid.UUID) ([]models.Company, error) {
	cp, err := r.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	all, err := r.companies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Company{}
	for _, co := range all {
		if IsVisible(cp.Tags, co.Tags) {
			out = append(out, co)
		}
	}
	return out, nil
}

// VisibleCampaigns returns the campaigns the company can see.
func (r *Resolver) VisibleCampaigns(ctx context.Context, companyID uuid.UUID) ([]models.Campaign, error) {
	co, err := r.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return r.campaignsFor(ctx, co.Tags)
}

// CanView reports whether the company can see the campaign.
func (r *Resolver) CanView(ctx context.Context, companyID, campaignID uuid.UUID) (bool, error) {
	co, err := r.companies.GetByID(ctx, companyID)
	if err != nil {
		return false, err
	}
	cp, err := r.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return IsVisible(cp.Tags, co.Tags), nil
}

// VisibleToUser returns the campaigns visible to the user's primary company.
// Users without a primary company see none.
func (r *Resolver) VisibleToUser(ctx context.Context, userID uuid.UUID) ([]models.Campaign, error) {
	co, err := r.primary.GetCompanyForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if co == nil {
		return []models.Campaign{}, nil
	}
	return r.campaignsFor(ctx, co.Tags)
}

// CanUserView reports whether the user's primary company can see the campaign.
func (r *Resolver) CanUserView(ctx context.Context, userID, campaignID uuid.UUID) (bool, error) {
	co, err := r.primary.GetCompanyForUser(ctx, userID)
	if err != nil || co == nil {
		return false, err
	}
	cp, err := r.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return IsVisible(cp.Tags, co.Tags), nil
}

func (r *Resolver) campaignsFor(ctx context.Context, companyTags []string) ([]models.Campaign, error) {
	all, err := r.campaigns.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Campaign{}
	for _, cp := range all {
		if IsVisible(cp.Tags, companyTags) {
			out = append(out, cp)
		}
	}
	return out, nil
}
