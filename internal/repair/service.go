// Package repair finds users without a primary company and gives each one a
// primary association: an existing association when there is exactly one,
// otherwise the single company claiming the user's e-mail domain, otherwise
// the unassigned bucket company when the fallback is enabled.
//
// Orphans are processed one at a time. A failure on one orphan is recorded
// and the run moves on; every orphan ends up either repaired or listed in
// Summary.StillOrphaned. The run never replaces an existing primary
// association, so running it twice without data changes repairs nothing the
// second time.
package repair

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/pkg/apperr"
)

// EventRepaired is published after a repair run that wrote changes.
const EventRepaired = "associations.repaired"

// UnassignedSlug is the slug of the bucket company for unmatched orphans.
const UnassignedSlug = "unassigned"

// ErrAlreadyRunning is returned when another repair run holds the lock.
var ErrAlreadyRunning = errors.New("association repair already running")

// Result is the per-orphan outcome kind.
type Result string

const (
	Repaired Result = "repaired"
	Skipped  Result = "skipped"
	Failed   Result = "failed"
)

// Reasons recorded on outcomes.
const (
	ReasonExistingAssociation = "existing_association"
	ReasonEmailDomain         = "email_domain"
	ReasonUnassignedBucket    = "unassigned_bucket"
	ReasonAmbiguousDomain     = "ambiguous_domain"
	ReasonNoMatch             = "no_match"
	ReasonAlreadyAssigned     = "already_assigned"
	ReasonError               = "error"
)

// Outcome describes what happened to one orphan.
type Outcome struct {
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	Result    Result     `json:"result"`
	Reason    string     `json:"reason"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Summary reports a repair run.
type Summary struct {
	Repaired      int         `json:"repaired"`
	Skipped       int         `json:"skipped"`
	Failed        int         `json:"failed"`
	StillOrphaned []uuid.UUID `json:"still_orphaned"`
	Outcomes      []Outcome   `json:"outcomes"`
	DryRun        bool        `json:"dry_run"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
}

// AssociationStore is the association data used by the repair.
type AssociationStore interface {
	ListOrphans(ctx context.Context) ([]models.User, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CompanyUser, error)
	AssignPrimaryIfNone(ctx context.Context, userID, companyID uuid.UUID, role string) (bool, error)
}

// CompanyStore is the company data used by the repair.
type CompanyStore interface {
	FindByDomain(ctx context.Context, domain string) ([]models.Company, error)
	GetBySlug(ctx context.Context, slug string) (*models.Company, error)
	GetOrCreateBySlug(ctx context.Context, slug, name string) (*models.Company, error)
}

// Locker serializes repair runs. TryLock returns ErrAlreadyRunning when held.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}

// Notifier fans out change events to connected clients.
type Notifier interface {
	Notify(room, event string, payload interface{})
}

// Options tune the repair.
type Options struct {
	FallbackEnabled bool
	FallbackName    string
	RatePerSecond   float64 // 0 disables pacing
	MaxAttempts     int
	RetryInterval   time.Duration
}

// RunOptions are per-run switches.
type RunOptions struct {
	DryRun bool // plan only; nothing is written
}

// Service runs association repairs.
type Service struct {
	assoc     AssociationStore
	companies CompanyStore
	locker    Locker
	notifier  Notifier
	opts      Options
	logger    *zap.Logger
}

// NewService creates a repair service. locker and notifier may be nil.
func NewService(assoc AssociationStore, companies CompanyStore, locker Locker, notifier Notifier, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	if opts.FallbackName == "" {
		opts.FallbackName = "Unassigned"
	}
	return &Service{assoc: assoc, companies: companies, locker: locker, notifier: notifier, opts: opts, logger: logger}
}

// run holds the state of one repair pass.
type run struct {
	*Service
	dryRun  bool
	limiter *rate.Limiter
	bucket  *models.Company
}

// Run repairs every current orphan. The returned summary is complete even
// when the context is cancelled mid-run; the orphans not reached are
// recorded as failed and the context error is returned alongside.
func (s *Service) Run(ctx context.Context, ro RunOptions) (*Summary, error) {
	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	r := &run{Service: s, dryRun: ro.DryRun, limiter: rate.NewLimiter(rate.Inf, 1)}
	if s.opts.RatePerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), 1)
	}

	sum := &Summary{DryRun: ro.DryRun, StartedAt: time.Now().UTC(), StillOrphaned: []uuid.UUID{}, Outcomes: []Outcome{}}
	orphans, err := withRetry(ctx, r, func() ([]models.User, error) { return s.assoc.ListOrphans(ctx) })
	if err != nil {
		s.logger.Error("repair: list orphans", zap.Error(err))
		return nil, err
	}
	s.logger.Info("repair started", zap.Int("orphans", len(orphans)), zap.Bool("dry_run", ro.DryRun))

	for _, u := range orphans {
		var out Outcome
		if ctx.Err() != nil {
			out = Outcome{UserID: u.ID, Email: u.Email, Result: Failed, Reason: ReasonError, Error: ctx.Err().Error()}
		} else {
			out = r.repairOne(ctx, u)
		}
		sum.Outcomes = append(sum.Outcomes, out)
		switch out.Result {
		case Repaired:
			sum.Repaired++
		case Skipped:
			sum.Skipped++
		case Failed:
			sum.Failed++
		}
		if out.Result == Failed || (out.Result == Skipped && out.Reason != ReasonAlreadyAssigned) {
			sum.StillOrphaned = append(sum.StillOrphaned, u.ID)
		}
	}
	sum.FinishedAt = time.Now().UTC()

	s.logger.Info("repair finished",
		zap.Int("repaired", sum.Repaired), zap.Int("skipped", sum.Skipped), zap.Int("failed", sum.Failed),
		zap.Int("still_orphaned", len(sum.StillOrphaned)), zap.Bool("dry_run", ro.DryRun),
		zap.Duration("took", sum.FinishedAt.Sub(sum.StartedAt)))
	if s.notifier != nil && !ro.DryRun {
		s.notifier.Notify(realtime.RoomAdmin, EventRepaired, map[string]interface{}{
			"repaired": sum.Repaired, "skipped": sum.Skipped, "failed": sum.Failed,
		})
	}
	return sum, ctx.Err()
}

func (r *run) repairOne(ctx context.Context, u models.User) Outcome {
	out := Outcome{UserID: u.ID, Email: u.Email}
	fail := func(err error) Outcome {
		r.logger.Warn("repair: orphan failed", zap.String("user_id", u.ID.String()), zap.Error(err))
		out.Result, out.Reason, out.Error = Failed, ReasonError, err.Error()
		return out
	}
	skip := func(reason string) Outcome {
		out.Result, out.Reason = Skipped, reason
		return out
	}

	links, err := withRetry(ctx, r, func() ([]models.CompanyUser, error) { return r.assoc.ListForUser(ctx, u.ID) })
	if err != nil {
		return fail(err)
	}
	for _, l := range links {
		if l.IsPrimary {
			return skip(ReasonAlreadyAssigned)
		}
	}

	var (
		target *uuid.UUID
		role   = models.CompanyRoleMember
		reason string
	)
	switch {
	case len(links) == 1:
		target, role, reason = &links[0].CompanyID, links[0].Role, ReasonExistingAssociation
	default:
		domain := EmailDomain(u.Email)
		var matches []models.Company
		if domain != "" {
			matches, err = withRetry(ctx, r, func() ([]models.Company, error) { return r.companies.FindByDomain(ctx, domain) })
			if err != nil {
				return fail(err)
			}
		}
		switch {
		case len(matches) == 1:
			target, reason = &matches[0].ID, ReasonEmailDomain
		case len(matches) > 1:
			return skip(ReasonAmbiguousDomain)
		case !r.opts.FallbackEnabled:
			return skip(ReasonNoMatch)
		default:
			bucket, err := r.unassigned(ctx)
			if err != nil {
				return fail(err)
			}
			reason = ReasonUnassignedBucket
			if bucket != nil {
				target = &bucket.ID
			}
		}
	}

	out.Reason = reason
	if r.dryRun {
		out.Result, out.CompanyID = Repaired, target
		return out
	}

	companyID := *target
	assigned, err := withRetry(ctx, r, func() (bool, error) { return r.assoc.AssignPrimaryIfNone(ctx, u.ID, companyID, role) })
	if err != nil {
		return fail(err)
	}
	if !assigned {
		return skip(ReasonAlreadyAssigned)
	}
	out.Result, out.CompanyID = Repaired, &companyID
	r.logger.Info("repair: orphan assigned", zap.String("user_id", u.ID.String()),
		zap.String("company_id", companyID.String()), zap.String("reason", reason))
	return out
}

// unassigned returns the bucket company, creating it on first use. In a dry
// run it is only looked up; a nil company means it would be created.
func (r *run) unassigned(ctx context.Context) (*models.Company, error) {
	if r.bucket != nil {
		return r.bucket, nil
	}
	if r.dryRun {
		co, err := withRetry(ctx, r, func() (*models.Company, error) { return r.companies.GetBySlug(ctx, UnassignedSlug) })
		if apperr.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		r.bucket = co
		return co, nil
	}
	co, err := withRetry(ctx, r, func() (*models.Company, error) {
		return r.companies.GetOrCreateBySlug(ctx, UnassignedSlug, r.opts.FallbackName)
	})
	if err != nil {
		return nil, err
	}
	r.bucket = co
	return co, nil
}

// withRetry paces op through the run's limiter and retries it with
// exponential backoff while it fails with a retryable error.
func withRetry[T any](ctx context.Context, r *run, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.RetryInterval
	b.MaxInterval = 10 * r.opts.RetryInterval
	return backoff.Retry(ctx, func() (T, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		v, err := op()
		if err != nil && !apperr.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(r.opts.MaxAttempts)))
}

// EmailDomain returns the lower-cased part after the last "@", or "" when
// there is none.
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}
