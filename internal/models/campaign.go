package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aura-crm/backend/pkg/apperr"
)

// CampaignStatus is the lifecycle state reported by the campaign provider.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// ParseCampaignStatus validates a status string.
func ParseCampaignStatus(s string) (CampaignStatus, error) {
	switch CampaignStatus(s) {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted:
		return CampaignStatus(s), nil
	}
	return "", apperr.Invalid("status", "unknown campaign status "+quote(s))
}

// CampaignStats are the delivery counters synced from the e-mail campaign provider.
type CampaignStats struct {
	EmailsSent int `json:"emails_sent"`
	Opens      int `json:"opens"`
	Replies    int `json:"replies"`
	Bounces    int `json:"bounces"`
}

// ParseCampaignStats decodes the stats column. Empty input yields zero stats.
func ParseCampaignStats(raw []byte) (CampaignStats, error) {
	var s CampaignStats
	if len(raw) == 0 || string(raw) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return CampaignStats{}, apperr.Invalid("stats", "malformed campaign stats: "+err.Error())
	}
	if s.EmailsSent < 0 || s.Opens < 0 || s.Replies < 0 || s.Bounces < 0 {
		return CampaignStats{}, apperr.Invalid("stats", "negative counter")
	}
	return s, nil
}

// Campaign is an outbound e-mail campaign. Tags restrict which companies see it.
type Campaign struct {
	ID         uuid.UUID      `json:"id"`
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Status     CampaignStatus `json:"status"`
	Tags       []string       `json:"tags"`
	Stats      CampaignStats  `json:"stats"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
