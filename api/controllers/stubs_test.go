package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stampbook/stampbook-backend/api/middleware"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/internal/notifications"
	"github.com/stampbook/stampbook-backend/internal/qrcodes"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// actorRequest builds a request as the auth middleware would leave it, with
// chi URL params set.
func actorRequest(method, target string, body io.Reader, actor uuid.UUID, role string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := req.Context()
	if actor != uuid.Nil {
		ctx = middleware.WithUserID(ctx, actor.String())
		ctx = middleware.WithRole(ctx, role)
	}
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	return req.WithContext(ctx)
}

type stubStampsService struct {
	issueFn        func(ctx context.Context, merchantID uuid.UUID, req stamps.IssueRequest, meta stamps.RequestMeta) (*stamps.IssueResult, error)
	listCardsFn    func(ctx context.Context, customerID uuid.UUID) ([]stamps.CustomerCardDTO, error)
	customerTxnsFn func(ctx context.Context, customerID, customerCardID uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error)
	merchantTxnsFn func(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error)
}

func (s *stubStampsService) IssueStamps(ctx context.Context, merchantID uuid.UUID, req stamps.IssueRequest, meta stamps.RequestMeta) (*stamps.IssueResult, error) {
	return s.issueFn(ctx, merchantID, req, meta)
}

func (s *stubStampsService) ListCustomerCards(ctx context.Context, customerID uuid.UUID) ([]stamps.CustomerCardDTO, error) {
	if s.listCardsFn != nil {
		return s.listCardsFn(ctx, customerID)
	}
	return nil, nil
}

func (s *stubStampsService) ListCustomerCardTransactions(ctx context.Context, customerID, customerCardID uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error) {
	return s.customerTxnsFn(ctx, customerID, customerCardID, params)
}

func (s *stubStampsService) ListMerchantTransactions(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID, params pagination.Params) (*pagination.Page[ledger.TransactionDTO], error) {
	return s.merchantTxnsFn(ctx, merchantID, cardID, params)
}

type stubRewardsService struct {
	redeemFn func(ctx context.Context, merchantID uuid.UUID, req rewards.RedeemRequest, meta stamps.RequestMeta) (*rewards.RedeemResult, error)
	claimFn  func(ctx context.Context, customerID, customerCardID uuid.UUID) (*rewards.ClaimResult, error)
	grantsFn func(ctx context.Context, customerID uuid.UUID) ([]rewards.GrantDTO, error)
}

func (s *stubRewardsService) Redeem(ctx context.Context, merchantID uuid.UUID, req rewards.RedeemRequest, meta stamps.RequestMeta) (*rewards.RedeemResult, error) {
	return s.redeemFn(ctx, merchantID, req, meta)
}

func (s *stubRewardsService) Claim(ctx context.Context, customerID, customerCardID uuid.UUID) (*rewards.ClaimResult, error) {
	return s.claimFn(ctx, customerID, customerCardID)
}

func (s *stubRewardsService) ListGrants(ctx context.Context, customerID uuid.UUID) ([]rewards.GrantDTO, error) {
	if s.grantsFn != nil {
		return s.grantsFn(ctx, customerID)
	}
	return nil, nil
}

func (s *stubRewardsService) ExpireStale(context.Context) (int64, error) { return 0, nil }

type stubCardsService struct {
	createFn func(ctx context.Context, merchantID uuid.UUID, input cards.CreateCardInput) (*models.StampCard, error)
	updateFn func(ctx context.Context, merchantID, id uuid.UUID, input cards.UpdateCardInput) (*models.StampCard, error)
}

func (s *stubCardsService) Create(ctx context.Context, merchantID uuid.UUID, input cards.CreateCardInput) (*models.StampCard, error) {
	return s.createFn(ctx, merchantID, input)
}

func (s *stubCardsService) ListForMerchant(context.Context, uuid.UUID) ([]models.StampCard, error) {
	return nil, nil
}

func (s *stubCardsService) Get(context.Context, uuid.UUID) (*models.StampCard, error) {
	return nil, nil
}

func (s *stubCardsService) GetOwned(context.Context, uuid.UUID, uuid.UUID) (*models.StampCard, error) {
	return nil, nil
}

func (s *stubCardsService) Update(ctx context.Context, merchantID, id uuid.UUID, input cards.UpdateCardInput) (*models.StampCard, error) {
	return s.updateFn(ctx, merchantID, id, input)
}

func (s *stubCardsService) SetActive(context.Context, uuid.UUID, uuid.UUID, bool) (*models.StampCard, error) {
	return nil, nil
}

type stubQRService struct {
	issueFn  func(ctx context.Context, merchantID uuid.UUID, input qrcodes.IssueInput) (*qrcodes.IssueResult, error)
	renderFn func(ctx context.Context, merchantID, qrID uuid.UUID, size int) ([]byte, error)
}

func (s *stubQRService) Issue(ctx context.Context, merchantID uuid.UUID, input qrcodes.IssueInput) (*qrcodes.IssueResult, error) {
	return s.issueFn(ctx, merchantID, input)
}

func (s *stubQRService) RefreshPayload(context.Context, uuid.UUID, uuid.UUID) (*qrcodes.IssueResult, error) {
	return nil, nil
}

func (s *stubQRService) Render(ctx context.Context, merchantID, qrID uuid.UUID, size int) ([]byte, error) {
	return s.renderFn(ctx, merchantID, qrID, size)
}

func (s *stubQRService) ListActive(context.Context, uuid.UUID, *uuid.UUID) ([]models.StampQRCode, error) {
	return nil, nil
}

type stubNotificationsService struct {
	markReadFn    func(ctx context.Context, recipientID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, recipientID uuid.UUID) (int64, error)
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *stubNotificationsService) Notify(context.Context, notifications.NotifyInput) (*models.Notification, error) {
	return nil, nil
}

func (s *stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *stubNotificationsService) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, notificationID)
	}
	return nil
}

func (s *stubNotificationsService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, recipientID)
	}
	return 0, nil
}
