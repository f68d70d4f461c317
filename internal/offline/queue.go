package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/instance"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	drainLeaseName     = "drain"
	defaultMaxAttempts = 10
	defaultBaseBackoff = 2 * time.Second
	defaultMaxBackoff  = 5 * time.Minute
	defaultLeaseTTL    = 2 * time.Minute
)

// Replayer delivers one queued operation to the API.
type Replayer interface {
	Replay(ctx context.Context, op models.OfflineOperation) error
}

type QueueParams struct {
	Repo     Repository
	Replayer Replayer
	Config   config.OfflineConfig
	Metrics  *metrics.OfflineQueueMetrics
	Logger   *logger.Logger
	// Owner identifies this process on the drain lease.
	Owner string
	Now   func() time.Time
}

// Queue is the durable client-side store of issuance and redemption calls
// that could not reach the API.
type Queue struct {
	repo        Repository
	replayer    Replayer
	metrics     *metrics.OfflineQueueMetrics
	logg        *logger.Logger
	owner       string
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	leaseTTL    time.Duration
	now         func() time.Time
}

// DrainReport summarises one drain pass. Failures holds every replay error
// combined with multierr.
type DrainReport struct {
	Replayed     int
	Retried      int
	DeadLettered int
	// LeaseHeld is set when another process was already draining.
	LeaseHeld bool
	Failures  error
}

func NewQueue(params QueueParams) (*Queue, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("offline repository required")
	case params.Replayer == nil:
		return nil, errors.New("replayer required")
	}

	cfg := params.Config
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	owner := params.Owner
	if owner == "" {
		owner = instance.GetID()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Queue{
		repo:        params.Repo,
		replayer:    params.Replayer,
		metrics:     params.Metrics,
		logg:        logg,
		owner:       owner,
		maxAttempts: maxAttempts,
		baseBackoff: base,
		maxBackoff:  maxBackoff,
		leaseTTL:    leaseTTL,
		now:         now,
	}, nil
}

// Enqueue stores an operation under a fresh id and returns it.
func (q *Queue) Enqueue(ctx context.Context, opType enums.OperationType, payload any) (uuid.UUID, error) {
	id := uuid.New()
	if err := q.EnqueueWithID(ctx, id, opType, payload); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// EnqueueWithID stores an operation under id, which should be the
// Idempotency-Key of any attempt already sent, so a replay of a request the
// server did receive is collapsed.
func (q *Queue) EnqueueWithID(ctx context.Context, id uuid.UUID, opType enums.OperationType, payload any) error {
	if !opType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown operation type %q", opType))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode operation payload")
	}

	now := q.now()
	op := &models.OfflineOperation{
		ID:            id,
		Type:          opType,
		Status:        enums.OperationStatusPending,
		Payload:       raw,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := q.repo.Insert(ctx, op); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store offline operation")
	}

	q.metrics.Enqueued(string(opType))
	q.refreshDepth(ctx, opType)
	q.logg.Info(q.logg.WithFields(ctx, map[string]any{
		"operation_id":   id.String(),
		"operation_type": string(opType),
		"seq":            op.Seq,
	}), "offline.enqueued")
	return nil
}

// Drain replays every due operation, queue by queue, in enqueue order. A
// transport failure stops the pass since the API is unreachable again. A
// retryable rejection stops only its own queue so later operations of that
// type are not replayed ahead of it.
func (q *Queue) Drain(ctx context.Context) (*DrainReport, error) {
	report := &DrainReport{}
	now := q.now()

	acquired, err := q.repo.AcquireLease(ctx, drainLeaseName, q.owner, q.leaseTTL, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire drain lease")
	}
	if !acquired {
		report.LeaseHeld = true
		q.logg.Info(ctx, "offline.drain.lease_held")
		return report, nil
	}
	defer func() {
		if err := q.repo.ReleaseLease(context.WithoutCancel(ctx), drainLeaseName, q.owner, q.now()); err != nil {
			q.logg.Error(ctx, "offline.drain.release_failed", err)
		}
	}()

	for _, opType := range enums.OperationTypes() {
		stop, err := q.drainType(ctx, opType, now, report)
		q.refreshDepth(ctx, opType)
		if err != nil {
			return report, err
		}
		if stop {
			break
		}
	}

	logCtx := q.logg.WithFields(ctx, map[string]any{
		"replayed":      report.Replayed,
		"retried":       report.Retried,
		"dead_lettered": report.DeadLettered,
	})
	if report.Failures != nil {
		q.logg.Warn(logCtx, "offline.drain.incomplete")
	} else {
		q.logg.Info(logCtx, "offline.drain.completed")
	}
	return report, nil
}

func (q *Queue) drainType(ctx context.Context, opType enums.OperationType, now time.Time, report *DrainReport) (bool, error) {
	ops, err := q.repo.ListPending(ctx, opType)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offline operations")
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if op.NextAttemptAt.After(now) {
			return false, nil
		}

		opCtx := q.logg.WithFields(ctx, map[string]any{
			"operation_id":   op.ID.String(),
			"operation_type": string(op.Type),
			"attempt_count":  op.AttemptCount,
		})

		replayErr := q.replayer.Replay(ctx, op)
		if replayErr == nil {
			if err := q.repo.Delete(ctx, op.ID); err != nil {
				return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove replayed operation")
			}
			report.Replayed++
			q.metrics.Replayed(string(op.Type))
			q.logg.Info(opCtx, "offline.drain.replayed")
			continue
		}

		report.Failures = multierr.Append(report.Failures, fmt.Errorf("operation %s: %w", op.ID, replayErr))
		attempts := op.AttemptCount + 1

		if !IsRetryable(replayErr) || attempts >= q.maxAttempts {
			if err := q.repo.MarkDeadLetter(ctx, op.ID, attempts, q.now(), replayErr); err != nil {
				return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dead letter operation")
			}
			report.DeadLettered++
			q.metrics.DeadLettered(string(op.Type))
			q.logg.Warn(q.logg.WithField(opCtx, "error", replayErr.Error()), "offline.drain.dead_lettered")
			if IsNetworkError(replayErr) {
				return true, nil
			}
			continue
		}

		next := q.now().Add(q.backoff(attempts))
		if err := q.repo.MarkRetry(ctx, op.ID, attempts, next, replayErr); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reschedule operation")
		}
		report.Retried++
		q.metrics.Retried(string(op.Type))
		q.logg.Warn(q.logg.WithFields(opCtx, map[string]any{
			"error":           replayErr.Error(),
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}), "offline.drain.retry_scheduled")

		return IsNetworkError(replayErr), nil
	}
	return false, nil
}

// backoff doubles from the base delay per attempt and caps at the maximum.
func (q *Queue) backoff(attempts int) time.Duration {
	delay := q.baseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= q.maxBackoff {
			return q.maxBackoff
		}
	}
	return delay
}

// Due reports whether the head of any queue is ready for replay. Operations
// behind a head that is still backing off are not counted since Drain keeps
// enqueue order.
func (q *Queue) Due(ctx context.Context) (bool, error) {
	now := q.now()
	for _, opType := range enums.OperationTypes() {
		at, ok, err := q.repo.HeadAttemptAt(ctx, opType)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inspect offline queue")
		}
		if ok && !at.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// Pending lists operations of one type still waiting for replay, in replay order.
func (q *Queue) Pending(ctx context.Context, opType enums.OperationType) ([]models.OfflineOperation, error) {
	rows, err := q.repo.ListPending(ctx, opType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offline operations")
	}
	return rows, nil
}

// DeadLetters lists operations that will not be replayed again, newest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]models.OfflineOperation, error) {
	rows, err := q.repo.ListDeadLetters(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	return rows, nil
}

func (q *Queue) refreshDepth(ctx context.Context, opType enums.OperationType) {
	if q.metrics == nil {
		return
	}
	n, err := q.repo.CountPending(ctx, opType)
	if err != nil {
		q.logg.Error(ctx, "offline.depth_failed", err)
		return
	}
	q.metrics.SetPending(string(opType), n)
}
