package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-crm/backend/internal/repair"
	"github.com/aura-crm/backend/pkg/queue"
	"github.com/aura-crm/backend/pkg/storage"
)

// Repairer runs an association repair. *repair.Service implements it.
type Repairer interface {
	Run(ctx context.Context, ro repair.RunOptions) (*repair.Summary, error)
}

// JobQueue is the queue surface the processor needs. *queue.Queue implements it.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
	SetStatus(ctx context.Context, st queue.JobStatus) error
}

// ReportStore persists repair reports. *storage.S3 implements it.
type ReportStore interface {
	UploadReport(ctx context.Context, key string, report []byte) error
}

// RepairProcessor processes association repair jobs: run the repair, upload
// the summary as a JSON report and record the job status.
type RepairProcessor struct {
	repairer Repairer
	reports  ReportStore
	queue    JobQueue
	timeout  time.Duration
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRepairProcessor creates a repair job processor. reports may be nil, in
// which case the summary is only kept in the job status.
func NewRepairProcessor(repairer Repairer, reports ReportStore, q JobQueue, timeout time.Duration, logger *zap.Logger) *RepairProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepairProcessor{repairer: repairer, reports: reports, queue: q, timeout: timeout, backoff: queue.RetryBackoff, logger: logger}
}

// reportWriteTimeout bounds the report upload and status writes, which run
// even after the job context is done.
const reportWriteTimeout = 30 * time.Second

// interruptedError is a repair run cut short by its timeout or by shutdown.
// The partial result it carries is already stored.
type interruptedError struct {
	err       error
	reportKey string
	result    json.RawMessage
}

func (e *interruptedError) Error() string { return "repair interrupted: " + e.err.Error() }

func (e *interruptedError) Unwrap() error { return e.err }

// resultCounts is the compact result kept in the job status.
type resultCounts struct {
	Repaired      int  `json:"repaired"`
	Skipped       int  `json:"skipped"`
	Failed        int  `json:"failed"`
	StillOrphaned int  `json:"still_orphaned"`
	DryRun        bool `json:"dry_run"`
}

// Process executes one repair job.
func (p *RepairProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAssociationRepair {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RepairPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	p.setStatus(ctx, queue.JobStatus{ID: job.ID, Type: job.Type, State: queue.StateRunning, Attempt: job.Attempt})

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	sum, runErr := p.repairer.Run(runCtx, repair.RunOptions{DryRun: payload.DryRun})
	if sum == nil {
		return fmt.Errorf("repair: %w", runErr)
	}

	// An interrupted run still returns what it did; keep it before retrying.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportWriteTimeout)
	defer cancel()
	key, counts, err := p.storeResult(writeCtx, job, sum)
	if err != nil {
		return err
	}
	if runErr != nil {
		p.logger.Warn("repair job interrupted", zap.String("job_id", job.ID), zap.String("report_key", key),
			zap.Int("repaired", sum.Repaired), zap.Int("failed", sum.Failed), zap.Error(runErr))
		return &interruptedError{err: runErr, reportKey: key, result: counts}
	}
	p.setStatus(writeCtx, queue.JobStatus{
		ID: job.ID, Type: job.Type, State: queue.StateSucceeded, Attempt: job.Attempt,
		ReportKey: key, Result: counts,
	})
	p.logger.Info("repair job completed", zap.String("job_id", job.ID), zap.String("report_key", key),
		zap.Int("repaired", sum.Repaired), zap.Int("failed", sum.Failed))
	return nil
}

// storeResult uploads the summary as a report and returns its key (empty
// without a report store or on upload failure) and the compact counts.
func (p *RepairProcessor) storeResult(ctx context.Context, job *queue.Job, sum *repair.Summary) (string, json.RawMessage, error) {
	report, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("marshal report: %w", err)
	}
	var key string
	if p.reports != nil {
		key = storage.RepairReportKey(job.ID)
		if err := p.reports.UploadReport(ctx, key, report); err != nil {
			// the repair itself is done; keep the counts even without a report
			p.logger.Error("upload repair report", zap.String("job_id", job.ID), zap.Error(err))
			key = ""
		}
	}
	counts, _ := json.Marshal(resultCounts{
		Repaired: sum.Repaired, Skipped: sum.Skipped, Failed: sum.Failed,
		StillOrphaned: len(sum.StillOrphaned), DryRun: sum.DryRun,
	})
	return key, counts, nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RepairProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("repair worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.handleFailure(ctx, job, err)
			p.sleep(ctx)
		}
	}
}

func (p *RepairProcessor) handleFailure(ctx context.Context, job *queue.Job, err error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
	// the job must be requeued or dead-lettered even during shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportWriteTimeout)
	defer cancel()
	dead, reErr := p.queue.Retry(ctx, job)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
	}
	state := queue.StateQueued
	if dead || reErr != nil {
		state = queue.StateFailed
	}
	st := queue.JobStatus{ID: job.ID, Type: job.Type, State: state, Attempt: job.Attempt, Error: err.Error()}
	var ie *interruptedError
	if errors.As(err, &ie) {
		st.ReportKey, st.Result = ie.reportKey, ie.result
	}
	p.setStatus(ctx, st)
}

func (p *RepairProcessor) setStatus(ctx context.Context, st queue.JobStatus) {
	if err := p.queue.SetStatus(ctx, st); err != nil {
		p.logger.Warn("record job status", zap.String("job_id", st.ID), zap.Error(err))
	}
}

func (p *RepairProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
