// Package stamps grants stamps to customers, directly or through a scanned
// QR code, and issues a reward code when a card completes.
package stamps

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/internal/customers"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/internal/notifications"
	"github.com/stampbook/stampbook-backend/internal/qrcodes"
	"github.com/stampbook/stampbook-backend/internal/ratelimit"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"github.com/stampbook/stampbook-backend/pkg/pagination"
	"github.com/stampbook/stampbook-backend/pkg/qrpayload"
	"github.com/stampbook/stampbook-backend/pkg/rewardcode"
	"gorm.io/gorm"
)

const (
	accrueAttempts = 5
	codeAttempts   = 8
)

// Service issues stamps and serves customer progress.
type Service interface {
	IssueStamps(ctx context.Context, merchantID uuid.UUID, req IssueRequest, meta RequestMeta) (*IssueResult, error)
	// ListCustomerCards includes cards held under pending identities merged
	// into customerID.
	ListCustomerCards(ctx context.Context, customerID uuid.UUID) ([]CustomerCardDTO, error)
	ListCustomerCardTransactions(ctx context.Context, customerID, customerCardID uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error)
	ListMerchantTransactions(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error)
}

type cardLoader interface {
	GetOwned(ctx context.Context, merchantID, id uuid.UUID) (*models.StampCard, error)
}

type customerResolver interface {
	Resolve(ctx context.Context, ref customers.Ref) (customers.Customer, error)
	Save(ctx context.Context, tx *gorm.DB, c customers.Customer) (customers.Customer, error)
	IdentityIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

// ServiceParams bundles the issuance dependencies.
type ServiceParams struct {
	TxRunner      db.TxRunner
	Repo          Repository
	QRCodes       qrcodes.Repository
	Cards         cardLoader
	Customers     customerResolver
	Limiter       ratelimit.Limiter
	Ledger        ledger.Service
	Notifications notifier
	Config        config.StampsConfig
	Metrics       *metrics.StampMetrics
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	tx        db.TxRunner
	repo      Repository
	qrcodes   qrcodes.Repository
	cards     cardLoader
	customers customerResolver
	limiter   ratelimit.Limiter
	ledger    ledger.Service
	notifier  notifier
	cfg       config.StampsConfig
	metrics   *metrics.StampMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService validates dependencies and returns the issuance service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stamps repository required")
	case params.QRCodes == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "qr code repository required")
	case params.Cards == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card loader required")
	case params.Customers == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "customer resolver required")
	case params.Limiter == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rate limiter required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:        params.TxRunner,
		repo:      params.Repo,
		qrcodes:   params.QRCodes,
		cards:     params.Cards,
		customers: params.Customers,
		limiter:   params.Limiter,
		ledger:    params.Ledger,
		notifier:  params.Notifications,
		cfg:       params.Config,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

type issuance struct {
	method   enums.IssuanceMethod
	count    int
	cardID   uuid.UUID
	customer customers.Ref
	qr       *models.StampQRCode
}

type accrual struct {
	row      *models.CustomerStampCard
	previous int
	txn      *models.StampTransaction
	grant    *models.RewardGrant
}

func (s *service) IssueStamps(ctx context.Context, merchantID uuid.UUID, req IssueRequest, meta RequestMeta) (*IssueResult, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity required")
	}
	ctx = s.logg.WithMerchantID(ctx, merchantID.String())
	now := s.now()

	in, err := parseRequest(req)
	if err != nil {
		return nil, s.reject(ctx, err)
	}
	ctx = s.logg.WithField(ctx, "method", string(in.method))

	if in.method == enums.IssuanceMethodQR {
		qr, err := s.resolveQR(ctx, merchantID, req.QRPayload, now)
		if err != nil {
			return nil, s.reject(ctx, err)
		}
		in.qr = qr
		in.cardID = qr.CardID
	}

	card, err := s.cards.GetOwned(ctx, merchantID, in.cardID)
	if err != nil {
		return nil, s.reject(ctx, err)
	}
	if err := cards.RequireActive(card); err != nil {
		return nil, s.reject(ctx, err)
	}

	customer, err := s.customers.Resolve(ctx, in.customer)
	if err != nil {
		return nil, s.reject(ctx, err)
	}
	ctx = s.logg.WithCustomerID(ctx, customer.ID.String())

	if err := s.limiter.Check(ctx, merchantID, customer.ID, now); err != nil {
		return nil, s.reject(ctx, err)
	}

	var out accrual
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		saved, err := s.customers.Save(ctx, tx, customer)
		if err != nil {
			return err
		}
		out, err = s.apply(ctx, tx, in, card, saved, meta, now)
		if err != nil {
			return err
		}
		customer = saved
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue stamps")
		}
		return nil, s.reject(ctx, err)
	}

	s.afterCommit(ctx, in, card, customer, out, now)

	result := &IssueResult{
		StampCard:    CustomerCardFromModel(out.row, card),
		RewardEarned: out.grant != nil,
		Transaction:  ledger.FromModel(out.txn),
	}
	if out.grant != nil {
		code := out.grant.Code
		result.RewardCode = &code
	}
	return result, nil
}

func parseRequest(req IssueRequest) (issuance, error) {
	method, err := enums.ParseIssuanceMethod(req.Method)
	if err != nil {
		return issuance{}, pkgerrors.New(pkgerrors.CodeValidation, "method must be direct or qr")
	}
	in := issuance{method: method, count: DefaultCount}

	if req.Count != nil {
		in.count = *req.Count
	}
	if in.count < MinCount || in.count > MaxCount {
		return issuance{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("count must be between %d and %d", MinCount, MaxCount))
	}

	switch method {
	case enums.IssuanceMethodQR:
		if strings.TrimSpace(req.QRPayload) == "" {
			return issuance{}, pkgerrors.New(pkgerrors.CodeValidation, "qrCode is required for qr issuance")
		}
	case enums.IssuanceMethodDirect:
		cardID, err := uuid.Parse(strings.TrimSpace(req.CardID))
		if err != nil {
			return issuance{}, pkgerrors.New(pkgerrors.CodeValidation, "cardId is required for direct issuance")
		}
		in.cardID = cardID
	}

	customerID := strings.TrimSpace(req.CustomerID)
	email := strings.TrimSpace(req.CustomerEmail)
	switch {
	case customerID != "":
		id, err := uuid.Parse(customerID)
		if err != nil {
			return issuance{}, pkgerrors.New(pkgerrors.CodeValidation, "customerId is invalid")
		}
		in.customer = customers.Ref{ID: &id}
	case email != "":
		in.customer = customers.Ref{Email: email}
	default:
		return issuance{}, pkgerrors.New(pkgerrors.CodeValidation, "customerId or customerEmail is required")
	}
	return in, nil
}

func (s *service) resolveQR(ctx context.Context, merchantID uuid.UUID, raw string, now time.Time) (*models.StampQRCode, error) {
	payload, err := qrpayload.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid QR code payload")
	}
	switch err := payload.CheckFreshness(now, s.cfg.ReplayWindow); {
	case errors.Is(err, qrpayload.ErrFuture):
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "QR code timestamp is in the future")
	case errors.Is(err, qrpayload.ErrStale):
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "QR code has expired, please scan a fresh code")
	}

	qr, err := s.qrcodes.FindByCode(ctx, payload.Code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "QR code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load qr code")
	}
	if qr.Expired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "QR code has expired")
	}
	if qr.Consumed() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyUsed, "QR code has already been used")
	}
	payloadMerchant, err := payload.MerchantUUID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid QR code payload")
	}
	if payloadMerchant != merchantID || qr.MerchantID != merchantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "QR code belongs to another merchant")
	}
	return qr, nil
}

// apply runs inside the issuance transaction: consume the QR, accrue stamps,
// append the ledger row and record the reward grant.
func (s *service) apply(ctx context.Context, tx *gorm.DB, in issuance, card *models.StampCard, customer customers.Customer, meta RequestMeta, now time.Time) (accrual, error) {
	if in.qr != nil && in.qr.IsSingleUse {
		consumed, err := s.qrcodes.WithTx(tx).Consume(ctx, in.qr.ID, now)
		if err != nil {
			return accrual{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume qr code")
		}
		if consumed == 0 {
			return accrual{}, pkgerrors.New(pkgerrors.CodeAlreadyUsed, "QR code has already been used")
		}
	}

	repo := s.repo.WithTx(tx)
	row, previous, err := s.accrue(ctx, repo, card, customer, in.count, now)
	if err != nil {
		return accrual{}, err
	}
	out := accrual{row: row, previous: previous}

	metadata := map[string]any{ledger.MetaMethod: string(in.method)}
	meta.Annotate(metadata)
	if in.qr != nil {
		metadata[ledger.MetaQRCodeID] = in.qr.ID.String()
	}

	var code *string
	earned := previous < card.TotalStamps && row.CurrentStamps >= card.TotalStamps
	if earned {
		generated, err := s.freshRewardCode(ctx, repo)
		if err != nil {
			return accrual{}, err
		}
		code = &generated
		out.grant = &models.RewardGrant{ID: uuid.New(), Code: generated}
		metadata[ledger.MetaRewardEarned] = true
		metadata[ledger.MetaRewardGrantID] = out.grant.ID.String()
	}

	txn, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
		CardID:       card.ID,
		CustomerID:   customer.ID,
		CustomerKind: customer.Kind,
		MerchantID:   card.MerchantID,
		Type:         enums.TransactionTypeStamp,
		Count:        in.count,
		RewardCode:   code,
		Metadata:     metadata,
		Timestamp:    now,
	})
	if err != nil {
		return accrual{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stamp transaction")
	}
	out.txn = txn

	if out.grant != nil {
		out.grant.CardID = card.ID
		out.grant.CustomerStampCardID = row.ID
		out.grant.CustomerID = customer.ID
		out.grant.CustomerKind = customer.Kind
		out.grant.MerchantID = card.MerchantID
		out.grant.State = enums.RewardGrantStateEarned
		out.grant.EarnedTransactionID = txn.ID
		out.grant.EarnedAt = now
		if err := repo.CreateGrant(ctx, out.grant); err != nil {
			return accrual{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reward grant")
		}
	}
	return out, nil
}

// accrue adds count stamps, capped at the card total, and returns the row
// with its balance before the change.
func (s *service) accrue(ctx context.Context, repo Repository, card *models.StampCard, customer customers.Customer, count int, now time.Time) (*models.CustomerStampCard, int, error) {
	for attempt := 0; attempt < accrueAttempts; attempt++ {
		row, err := repo.FindCustomerCard(ctx, card.ID, customer.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = &models.CustomerStampCard{
				CardID:        card.ID,
				CustomerID:    customer.ID,
				CustomerKind:  customer.Kind,
				CurrentStamps: min(count, card.TotalStamps),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			created, err := repo.InsertCustomerCard(ctx, row)
			if err != nil {
				return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer card")
			}
			if created {
				return row, 0, nil
			}
			continue
		}
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer card")
		}

		previous := row.CurrentStamps
		next := min(previous+count, card.TotalStamps)
		updated, err := repo.CompareAndSetStamps(ctx, row.ID, previous, next, now)
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer card")
		}
		if updated == 1 {
			row.CurrentStamps = next
			row.UpdatedAt = now
			return row, previous, nil
		}
	}
	return nil, 0, pkgerrors.New(pkgerrors.CodeConflict, "stamp card was updated concurrently, please retry")
}

func (s *service) freshRewardCode(ctx context.Context, repo Repository) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := rewardcode.Generate()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reward code")
		}
		taken, err := repo.GrantCodeTaken(ctx, code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reward code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a reward code")
}

// afterCommit runs the side effects of a committed issuance. Failures are
// logged and counted; the grant stands.
func (s *service) afterCommit(ctx context.Context, in issuance, card *models.StampCard, customer customers.Customer, out accrual, now time.Time) {
	if err := s.limiter.Record(ctx, card.MerchantID, customer.ID, now); err != nil {
		s.metrics.PostCommitFailure("rate_limit_counter")
		s.logg.Error(ctx, "stamps.issue.rate_counter_failed", err)
	}

	if s.notifier != nil && customer.Kind == enums.CustomerKindUser {
		s.notify(ctx, notifications.NotifyInput{
			RecipientID: customer.ID,
			Type:        enums.NotificationTypeStampAdded,
			Message:     fmt.Sprintf("%s: %d of %d stamps", card.Name, out.row.CurrentStamps, card.TotalStamps),
			Link:        "/customer/cards/" + out.row.ID.String(),
		})
		if out.grant != nil {
			s.notify(ctx, notifications.NotifyInput{
				RecipientID: customer.ID,
				Type:        enums.NotificationTypeRewardEarned,
				Message:     fmt.Sprintf("You earned %s. Show code %s to redeem it.", card.Reward, out.grant.Code),
				Link:        "/customer/rewards",
			})
		}
	}

	s.metrics.StampsIssued(string(in.method), in.count)
	fields := map[string]any{
		"card_id":          card.ID.String(),
		"customer_card_id": out.row.ID.String(),
		"customer_kind":    string(customer.Kind),
		"count":            in.count,
		"previous_stamps":  out.previous,
		"current_stamps":   out.row.CurrentStamps,
		"transaction_id":   out.txn.ID.String(),
	}
	if out.grant != nil {
		s.metrics.RewardEarned()
		fields["reward_grant_id"] = out.grant.ID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "stamps.issued")
}

func (s *service) notify(ctx context.Context, input notifications.NotifyInput) {
	if _, err := s.notifier.Notify(ctx, input); err != nil {
		s.metrics.PostCommitFailure("notification")
		s.logg.Error(s.logg.WithField(ctx, "notification_type", string(input.Type)), "stamps.issue.notify_failed", err)
	}
}

func (s *service) reject(ctx context.Context, err error) error {
	kind := pkgerrors.KindOf(err)
	s.metrics.IssuanceRejected(string(kind))
	logCtx := s.logg.WithField(ctx, "error_type", string(kind))
	switch kind {
	case pkgerrors.KindInternal, pkgerrors.KindDependency:
		s.logg.Error(logCtx, "stamps.issue.failed", err)
	case pkgerrors.KindRateLimited:
		s.logg.Warn(logCtx, "stamps.issue.rate_limited")
	default:
		s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "stamps.issue.rejected")
	}
	return err
}

func (s *service) ListCustomerCards(ctx context.Context, customerID uuid.UUID) ([]CustomerCardDTO, error) {
	ids, err := s.customers.IdentityIDs(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListCustomerCards(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer cards")
	}
	out := make([]CustomerCardDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *CustomerCardFromModel(&rows[i], nil))
	}
	return out, nil
}

func (s *service) ListCustomerCardTransactions(ctx context.Context, customerID, customerCardID uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error) {
	ids, err := s.customers.IdentityIDs(ctx, customerID)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.FindCustomerCardByID(ctx, customerCardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stamp card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer card")
	}
	if !slices.Contains(ids, row.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stamp card not found")
	}

	page, err := s.ledger.List(ctx, ledger.ListParams{
		CustomerIDs: ids,
		CardID:      &row.CardID,
		Cursor:      params.Cursor,
		Limit:       params.Limit,
	})
	if err != nil {
		return nil, err
	}
	return ledger.PageFromModels(page), nil
}

func (s *service) ListMerchantTransactions(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity required")
	}
	if cardID != nil {
		if _, err := s.cards.GetOwned(ctx, merchantID, *cardID); err != nil {
			return nil, err
		}
	}
	page, err := s.ledger.List(ctx, ledger.ListParams{
		MerchantID: &merchantID,
		CardID:     cardID,
		Cursor:     params.Cursor,
		Limit:      params.Limit,
	})
	if err != nil {
		return nil, err
	}
	return ledger.PageFromModels(page), nil
}
