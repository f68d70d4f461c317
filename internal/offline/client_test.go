package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
)

func TestClientIssueStampsSendsHeaders(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody stamps.IssueRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != issueStampsPath || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"rewardEarned":true,"rewardCode":"K7Q2ZP","stampCard":{"current_stamps":5}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", "merchant-token")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.IssueStamps(context.Background(), stamps.IssueRequest{Method: "direct", CustomerEmail: "a@b.c"}, "key-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !resp.Success || !resp.RewardEarned || resp.RewardCode == nil || *resp.RewardCode != "K7Q2ZP" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.StampCard == nil || resp.StampCard.CurrentStamps != 5 {
		t.Fatalf("expected stamp card in response, got %+v", resp.StampCard)
	}
	if gotKey != "key-1" || gotAuth != "Bearer merchant-token" {
		t.Fatalf("unexpected headers key=%q auth=%q", gotKey, gotAuth)
	}
	if gotBody.CustomerEmail != "a@b.c" {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"error":"reward has already been redeemed","errorType":"already_used","code":"ALREADY_USED"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "")
	_, err := client.RedeemReward(context.Background(), rewards.RedeemRequest{RewardCode: "ABC123"}, "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyUsed) {
		t.Fatalf("expected already used, got %v", err)
	}
	if pkgerrors.As(err).Message() != "reward has already been redeemed" {
		t.Fatalf("unexpected message %q", pkgerrors.As(err).Message())
	}
	if IsRetryable(err) || IsNetworkError(err) {
		t.Fatal("business rejection must not be retried")
	}
}

func TestClientClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		network   bool
		retryable bool
	}{
		{name: "bad gateway", status: http.StatusBadGateway, network: true, retryable: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, network: true, retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down","code":"RATE_LIMIT_EXCEEDED"}`, retryable: true},
		{name: "dependency", status: http.StatusServiceUnavailable, body: `not json`, retryable: true},
		{name: "validation", status: http.StatusBadRequest, body: `{"error":"count must be between 1 and 10"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client, _ := NewClient(srv.URL, "")
			_, err := client.IssueStamps(context.Background(), stamps.IssueRequest{}, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsNetworkError(err) != tc.network || IsRetryable(err) != tc.retryable {
				t.Fatalf("network=%v retryable=%v for %v", IsNetworkError(err), IsRetryable(err), err)
			}
		})
	}
}

func TestClientUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, _ := NewClient(url, "")
	if err := client.Health(context.Background()); !IsNetworkError(err) {
		t.Fatalf("expected network error from health, got %v", err)
	}
	_, err := client.IssueStamps(context.Background(), stamps.IssueRequest{}, "")
	if !IsNetworkError(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestClientReplayUsesOperationID(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"success":true,"reward":"Free Coffee"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "t")
	op := models.OfflineOperation{
		ID:      uuid.New(),
		Type:    enums.OperationRedeemReward,
		Payload: []byte(`{"rewardCode":"ABC123"}`),
	}
	if err := client.Replay(context.Background(), op); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if gotKey != op.ID.String() || gotPath != redeemRewardPath {
		t.Fatalf("unexpected replay key=%q path=%q", gotKey, gotPath)
	}

	op.Payload = []byte(`{`)
	if err := client.Replay(context.Background(), op); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for corrupt payload, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  ", "t"); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
