package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1 << 20

	issueStampsPath  = "/api/v1/merchant/stamps"
	redeemRewardPath = "/api/v1/merchant/rewards/redeem"
	healthPath       = "/health/live"
)

var errBaseURLRequired = errors.New("stampbook api base url is required")

// Client calls the merchant issuance and redemption endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds an API client authenticated with a merchant bearer token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// IssueResponse is the flat issuance response body.
type IssueResponse struct {
	Success bool `json:"success"`
	stamps.IssueResult
}

// RedeemResponse is the flat redemption response body.
type RedeemResponse struct {
	Success bool `json:"success"`
	rewards.RedeemResult
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	Code      string `json:"code"`
	Details   any    `json:"details"`
}

// IssueStamps posts an issuance request. idempotencyKey may be empty.
func (c *Client) IssueStamps(ctx context.Context, req stamps.IssueRequest, idempotencyKey string) (*IssueResponse, error) {
	var out IssueResponse
	if err := c.post(ctx, "issue stamps", issueStampsPath, req, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RedeemReward posts a redemption request. idempotencyKey may be empty.
func (c *Client) RedeemReward(ctx context.Context, req rewards.RedeemRequest, idempotencyKey string) (*RedeemResponse, error) {
	var out RedeemResponse
	if err := c.post(ctx, "redeem reward", redeemRewardPath, req, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the liveness endpoint. Any failure is a transport error.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build health request")
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Op: "health", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseBodyReadLimit))
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "health", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// Replay sends a queued operation with its id as the Idempotency-Key.
func (c *Client) Replay(ctx context.Context, op models.OfflineOperation) error {
	key := op.ID.String()
	switch op.Type {
	case enums.OperationIssueStamp:
		var req stamps.IssueRequest
		if err := json.Unmarshal(op.Payload, &req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode queued issuance")
		}
		_, err := c.IssueStamps(ctx, req, key)
		return err
	case enums.OperationRedeemReward:
		var req rewards.RedeemRequest
		if err := json.Unmarshal(op.Payload, &req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode queued redemption")
		}
		_, err := c.RedeemReward(ctx, req, key)
		return err
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown operation type %q", op.Type))
	}
}

func (c *Client) post(ctx context.Context, op, path string, body any, idempotencyKey string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+op+" request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+op+" request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return &TransportError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

// decodeAPIError rebuilds the server's typed error from its envelope so
// callers can branch on the same codes the server uses.
func decodeAPIError(status int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == "" {
		return pkgerrors.New(codeForStatus(status), fmt.Sprintf("unexpected status %d", status))
	}
	code := pkgerrors.Code(env.Code)
	if env.Code == "" {
		code = codeForStatus(status)
	}
	apiErr := pkgerrors.New(code, env.Error)
	if env.Details != nil {
		apiErr = apiErr.WithDetails(env.Details)
	}
	return apiErr
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusGone:
		return pkgerrors.CodeExpired
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusServiceUnavailable:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeInternal
	}
}
