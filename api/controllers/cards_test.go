package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
)

func TestMerchantCreateCard(t *testing.T) {
	merchantID := uuid.New()
	svc := &stubCardsService{
		createFn: func(_ context.Context, mid uuid.UUID, input cards.CreateCardInput) (*models.StampCard, error) {
			if mid != merchantID || input.TotalStamps != 5 || input.Reward != "Free Coffee" {
				t.Fatalf("unexpected create %s %+v", mid, input)
			}
			return &models.StampCard{ID: uuid.New(), MerchantID: mid, Name: input.Name, TotalStamps: input.TotalStamps, Reward: input.Reward, IsActive: true}, nil
		},
	}
	req := actorRequest(http.MethodPost, "/api/v1/merchant/cards", strings.NewReader(`{"name":"Coffee","total_stamps":5,"reward":"Free Coffee"}`), merchantID, "merchant", nil)
	rec := httptest.NewRecorder()

	MerchantCreateCard(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data cards.CardDTO `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.TotalStamps != 5 || !out.Data.IsActive {
		t.Fatalf("unexpected card %+v", out.Data)
	}
}

func TestMerchantCreateCardValidation(t *testing.T) {
	bodies := []string{
		`{"name":"Coffee","total_stamps":0,"reward":"Free Coffee"}`,
		`{"name":"Coffee","total_stamps":101,"reward":"Free Coffee"}`,
		`{"total_stamps":5,"reward":"Free Coffee"}`,
		`{"name":"Coffee","total_stamps":5,"reward":"x","business_color":"blue"}`,
	}
	for _, body := range bodies {
		req := actorRequest(http.MethodPost, "/api/v1/merchant/cards", strings.NewReader(body), uuid.New(), "merchant", nil)
		rec := httptest.NewRecorder()
		MerchantCreateCard(&stubCardsService{}, nil).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, rec.Code)
		}
	}
}

func TestMerchantUpdateCardPassesPathID(t *testing.T) {
	merchantID := uuid.New()
	cardID := uuid.New()
	svc := &stubCardsService{
		updateFn: func(_ context.Context, mid, id uuid.UUID, input cards.UpdateCardInput) (*models.StampCard, error) {
			if mid != merchantID || id != cardID {
				t.Fatalf("unexpected ids %s %s", mid, id)
			}
			if input.IsActive == nil || *input.IsActive {
				t.Fatalf("expected deactivation, got %+v", input)
			}
			return &models.StampCard{ID: id, MerchantID: mid, IsActive: false}, nil
		},
	}
	req := actorRequest(http.MethodPatch, "/api/v1/merchant/cards/x", strings.NewReader(`{"is_active":false}`), merchantID, "merchant",
		map[string]string{"cardId": cardID.String()})
	rec := httptest.NewRecorder()

	MerchantUpdateCard(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMerchantUpdateCardRejectsTotalStamps(t *testing.T) {
	req := actorRequest(http.MethodPatch, "/api/v1/merchant/cards/x", strings.NewReader(`{"total_stamps":8}`), uuid.New(), "merchant",
		map[string]string{"cardId": uuid.NewString()})
	rec := httptest.NewRecorder()

	MerchantUpdateCard(&stubCardsService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for immutable field, got %d", rec.Code)
	}
}
