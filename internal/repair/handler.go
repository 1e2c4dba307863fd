package repair

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/pkg/queue"
	"github.com/aura-crm/backend/pkg/response"
)

// JobQueue enqueues repair jobs and tracks their status. *queue.Queue implements it.
type JobQueue interface {
	EnqueueRepair(ctx context.Context, payload queue.RepairPayload) (*queue.Job, error)
	SetStatus(ctx context.Context, st queue.JobStatus) error
	GetStatus(ctx context.Context, jobID string) (*queue.JobStatus, error)
}

// ReportLinker turns a stored report key into a download URL. *storage.S3 implements it.
type ReportLinker interface {
	ReportURL(ctx context.Context, key string) (string, error)
}

// Handler handles repair HTTP endpoints.
type Handler struct {
	svc     *Service
	jobs    JobQueue
	reports ReportLinker
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a repair handler. jobs and reports may be nil, which
// disables the asynchronous endpoints and report links.
func NewHandler(svc *Service, jobs JobQueue, reports ReportLinker, timeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, jobs: jobs, reports: reports, timeout: timeout, logger: logger}
}

// RunRequest is the optional body of the repair endpoints.
type RunRequest struct {
	DryRun bool `json:"dry_run"`
}

// JobStatusResponse is the body of GET /admin/associations/repair/jobs/:id.
type JobStatusResponse struct {
	queue.JobStatus
	ReportURL string `json:"report_url,omitempty"`
}

// Run handles POST /admin/associations/repair. It runs the repair inline and
// returns the summary. A run cut short by the handler timeout still answers
// 200 with the partial summary; the orphans it did not reach count as failed.
func (h *Handler) Run(c *gin.Context) {
	var body RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	actor := middleware.ActorFrom(c)
	h.logger.Info("repair requested", zap.String("by", actor.UserID.String()), zap.Bool("dry_run", body.DryRun))

	sum, err := h.svc.Run(ctx, RunOptions{DryRun: body.DryRun})
	if errors.Is(err, ErrAlreadyRunning) {
		response.Conflict(c, "a repair is already running")
		return
	}
	if err != nil && sum == nil {
		h.logger.Warn("repair failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	if err != nil {
		h.logger.Warn("repair interrupted", zap.Error(err))
	}
	response.OK(c, sum)
}

// Enqueue handles POST /admin/associations/repair/jobs.
func (h *Handler) Enqueue(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "job queue unavailable")
		return
	}
	var body RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	actor := middleware.ActorFrom(c)
	ctx := c.Request.Context()
	job, err := h.jobs.EnqueueRepair(ctx, queue.RepairPayload{RequestedBy: actor.UserID, DryRun: body.DryRun})
	if err != nil {
		h.logger.Error("enqueue repair", zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, please retry")
		return
	}
	st := queue.JobStatus{ID: job.ID, Type: job.Type, State: queue.StateQueued}
	if err := h.jobs.SetStatus(ctx, st); err != nil {
		h.logger.Warn("record job status", zap.String("job_id", job.ID), zap.Error(err))
	}
	c.JSON(http.StatusAccepted, response.Body{Success: true, Data: st})
}

// JobStatus handles GET /admin/associations/repair/jobs/:id.
func (h *Handler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "job queue unavailable")
		return
	}
	id := c.Param("id")
	st, err := h.jobs.GetStatus(c.Request.Context(), id)
	if errors.Is(err, queue.ErrStatusNotFound) {
		response.NotFound(c, "job "+id+" not found")
		return
	}
	if err != nil {
		h.logger.Warn("get job status", zap.String("job_id", id), zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, please retry")
		return
	}
	out := JobStatusResponse{JobStatus: *st}
	if st.ReportKey != "" && h.reports != nil {
		url, err := h.reports.ReportURL(c.Request.Context(), st.ReportKey)
		if err != nil {
			h.logger.Warn("presign report", zap.String("job_id", id), zap.Error(err))
		} else {
			out.ReportURL = url
		}
	}
	response.OK(c, out)
}
