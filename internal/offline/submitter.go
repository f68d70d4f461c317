package offline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

type merchantAPI interface {
	IssueStamps(ctx context.Context, req stamps.IssueRequest, idempotencyKey string) (*IssueResponse, error)
	RedeemReward(ctx context.Context, req rewards.RedeemRequest, idempotencyKey string) (*RedeemResponse, error)
}

type enqueuer interface {
	EnqueueWithID(ctx context.Context, id uuid.UUID, opType enums.OperationType, payload any) error
}

// Connectivity reports the last known API reachability. MarkOffline is
// called when a live call fails in transit.
type Connectivity interface {
	Online() bool
	MarkOffline()
}

// IssueOutcome is either a confirmed server result or a provisional
// placeholder for a queued call. Provisional outcomes carry no server state
// and must never be stored as the card's real progress.
type IssueOutcome struct {
	Result      *stamps.IssueResult
	Provisional bool
	OperationID uuid.UUID
	// QueuedCount is the stamp count waiting in the queue, for display.
	QueuedCount int
}

// RedeemOutcome mirrors IssueOutcome for redemptions.
type RedeemOutcome struct {
	Result      *rewards.RedeemResult
	Provisional bool
	OperationID uuid.UUID
}

type SubmitterParams struct {
	API          merchantAPI
	Queue        enqueuer
	Connectivity Connectivity
	Logger       *logger.Logger
}

// Submitter sends merchant calls to the API and falls back to the offline
// queue when the network is unavailable. Business rejections are returned
// as errors and never queued.
type Submitter struct {
	api   merchantAPI
	queue enqueuer
	conn  Connectivity
	logg  *logger.Logger
}

func NewSubmitter(params SubmitterParams) (*Submitter, error) {
	switch {
	case params.API == nil:
		return nil, errors.New("api client required")
	case params.Queue == nil:
		return nil, errors.New("offline queue required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Submitter{api: params.API, queue: params.Queue, conn: params.Connectivity, logg: logg}, nil
}

func (s *Submitter) IssueStamps(ctx context.Context, req stamps.IssueRequest) (*IssueOutcome, error) {
	id := uuid.New()
	if s.online() {
		resp, err := s.api.IssueStamps(ctx, req, id.String())
		if err == nil {
			return &IssueOutcome{Result: &resp.IssueResult, OperationID: id}, nil
		}
		if !IsNetworkError(err) {
			return nil, err
		}
		s.wentOffline(ctx, err)
	}

	if err := s.queue.EnqueueWithID(ctx, id, enums.OperationIssueStamp, req); err != nil {
		return nil, err
	}
	count := stamps.DefaultCount
	if req.Count != nil {
		count = *req.Count
	}
	return &IssueOutcome{Provisional: true, OperationID: id, QueuedCount: count}, nil
}

func (s *Submitter) RedeemReward(ctx context.Context, req rewards.RedeemRequest) (*RedeemOutcome, error) {
	id := uuid.New()
	if s.online() {
		resp, err := s.api.RedeemReward(ctx, req, id.String())
		if err == nil {
			return &RedeemOutcome{Result: &resp.RedeemResult, OperationID: id}, nil
		}
		if !IsNetworkError(err) {
			return nil, err
		}
		s.wentOffline(ctx, err)
	}

	if err := s.queue.EnqueueWithID(ctx, id, enums.OperationRedeemReward, req); err != nil {
		return nil, err
	}
	return &RedeemOutcome{Provisional: true, OperationID: id}, nil
}

func (s *Submitter) wentOffline(ctx context.Context, err error) {
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "offline.submit.network_error")
	if s.conn != nil {
		s.conn.MarkOffline()
	}
}

func (s *Submitter) online() bool {
	return s.conn == nil || s.conn.Online()
}
