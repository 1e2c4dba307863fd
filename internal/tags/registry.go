// Package tags keeps the normalized free-text tag sets of companies and
// campaigns. Tags are trimmed, Unicode case-folded, de-duplicated and sorted
// before they are stored, so two spellings of the same word are one tag.
package tags

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/pkg/apperr"
)

// MaxTagLength is the longest accepted tag, in runes, after trimming.
const MaxTagLength = 64

const (
	// EventTagsUpdated carries the saved tag set to staff and, for a
	// company, to its own members.
	EventTagsUpdated = "tags.updated"
	// EventCampaignsChanged tells every client to refetch its visible
	// campaigns. It has no payload: which campaign changed is not theirs to see.
	EventCampaignsChanged = "campaigns.changed"
)

// EntityKind names the kind of entity a tag set belongs to.
type EntityKind string

const (
	KindCompany  EntityKind = "company"
	KindCampaign EntityKind = "campaign"
)

// Scope selects which tag sets ListAvailableTags draws from.
type Scope string

const (
	ScopeCompany  Scope = "company"
	ScopeCampaign Scope = "campaign"
	ScopeAll      Scope = "all"
)

// ParseScope validates a scope string. The empty string means all.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeCompany, ScopeCampaign:
		return Scope(s), nil
	}
	return "", apperr.Invalid("scope", "must be company, campaign or all")
}

// Store reads and writes the tag column of one entity kind.
type Store interface {
	GetTags(ctx context.Context, id uuid.UUID) ([]string, error)
	SetTags(ctx context.Context, id uuid.UUID, tags []string) error
	DistinctTags(ctx context.Context) ([]string, error)
}

// Notifier fans out change events to connected clients.
type Notifier interface {
	Notify(room, event string, payload interface{})
}

// Update is the payload of EventTagsUpdated.
type Update struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
	Tags []string   `json:"tags"`
}

// Registry implements the tag operations over the company and campaign stores.
type Registry struct {
	stores   map[EntityKind]Store
	notifier Notifier
	logger   *zap.Logger
}

// NewRegistry creates a tag registry. notifier may be nil.
func NewRegistry(companies, campaigns Store, notifier Notifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		stores:   map[EntityKind]Store{KindCompany: companies, KindCampaign: campaigns},
		notifier: notifier,
		logger:   logger,
	}
}

// SetTags normalizes tags and replaces the entity's tag set with the result,
// which it returns. Invalid input is rejected before anything is written.
func (r *Registry) SetTags(ctx context.Context, kind EntityKind, id uuid.UUID, tags []string) ([]string, error) {
	store, err := r.store(kind)
	if err != nil {
		return nil, err
	}
	normalized, err := Normalize(tags)
	if err != nil {
		return nil, err
	}
	if err := store.SetTags(ctx, id, normalized); err != nil {
		return nil, err
	}
	r.logger.Info("tags updated", zap.String("kind", string(kind)), zap.String("id", id.String()),
		zap.Strings("tags", normalized))
	if r.notifier != nil {
		u := Update{Kind: kind, ID: id, Tags: normalized}
		r.notifier.Notify(realtime.RoomAdmin, EventTagsUpdated, u)
		if kind == KindCompany {
			r.notifier.Notify(realtime.CompanyRoom(id), EventTagsUpdated, u)
		} else {
			r.notifier.Notify(realtime.RoomAll, EventCampaignsChanged, nil)
		}
	}
	return normalized, nil
}

// GetTags returns the stored tag set of an entity.
func (r *Registry) GetTags(ctx context.Context, kind EntityKind, id uuid.UUID) ([]string, error) {
	store, err := r.store(kind)
	if err != nil {
		return nil, err
	}
	return store.GetTags(ctx, id)
}

// ListAvailableTags returns the sorted union of tags in use within scope.
func (r *Registry) ListAvailableTags(ctx context.Context, scope Scope) ([]string, error) {
	var kinds []EntityKind
	switch scope {
	case ScopeCompany:
		kinds = []EntityKind{KindCompany}
	case ScopeCampaign:
		kinds = []EntityKind{KindCampaign}
	case ScopeAll, "":
		kinds = []EntityKind{KindCompany, KindCampaign}
	default:
		return nil, apperr.Invalid("scope", "must be company, campaign or all")
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, k := range kinds {
		list, err := r.stores[k].DistinctTags(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range list {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *Registry) store(kind EntityKind) (Store, error) {
	s, ok := r.stores[kind]
	if !ok || s == nil {
		return nil, apperr.Invalid("kind", "unknown entity kind "+strconv.Quote(string(kind)))
	}
	return s, nil
}

// Normalize trims and case-folds each tag, drops duplicates and sorts the
// result. A tag that is empty after trimming or longer than MaxTagLength runes
// is a ValidationError. Nil input yields an empty set.
func Normalize(tags []string) ([]string, error) {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for i, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, apperr.Invalid("tags["+strconv.Itoa(i)+"]", "tag must not be empty")
		}
		t = fold.String(t)
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, apperr.Invalid("tags["+strconv.Itoa(i)+"]", "tag longer than "+strconv.Itoa(MaxTagLength)+" characters")
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
