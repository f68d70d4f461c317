package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/stampbook/stampbook-backend/internal/notifications"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
)

func TestMarkNotificationReadSuccess(t *testing.T) {
	customerID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &stubNotificationsService{
		markReadFn: func(ctx context.Context, rid, nid uuid.UUID) error {
			called = true
			if rid != customerID {
				t.Fatalf("unexpected recipient %s", rid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := actorRequest(http.MethodPost, "/api/v1/customer/notifications/x/read", nil, customerID, "customer",
		map[string]string{"notificationId": notificationID.String()})
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data["read"] {
		t.Fatalf("expected read true, got %v", envelope.Data)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &stubNotificationsService{
		markReadFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	req := actorRequest(http.MethodPost, "/api/v1/customer/notifications/x/read", nil, uuid.New(), "customer",
		map[string]string{"notificationId": uuid.NewString()})
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, nil)(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestListNotificationsParsesQuery(t *testing.T) {
	customerID := uuid.New()
	svc := &stubNotificationsService{
		listFn: func(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			if params.RecipientID != customerID || params.Limit != 5 || !params.UnreadOnly || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return &notifications.ListResult{}, nil
		},
	}
	req := actorRequest(http.MethodGet, "/api/v1/customer/notifications?limit=5&unreadOnly=true&cursor=abc", nil, customerID, "customer", nil)
	resp := httptest.NewRecorder()
	ListNotifications(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	bad := actorRequest(http.MethodGet, "/api/v1/customer/notifications?limit=-1", nil, customerID, "customer", nil)
	resp = httptest.NewRecorder()
	ListNotifications(svc, nil)(resp, bad)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &stubNotificationsService{
		markAllReadFn: func(context.Context, uuid.UUID) (int64, error) { return 3, nil },
	}
	req := actorRequest(http.MethodPost, "/api/v1/customer/notifications/read-all", nil, uuid.New(), "customer", nil)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, nil)(resp, req)

	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["updated"] != 3 {
		t.Fatalf("expected 3 updated, got %v", envelope.Data)
	}
}
