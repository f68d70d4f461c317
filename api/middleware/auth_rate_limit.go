package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"maps"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stampbook/stampbook-backend/api/responses"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

const maxAuthBodyBytes = 16 << 10

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy defines the throttling parameters for one auth endpoint.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

// NewAuthRateLimitPolicy builds a policy with the supplied window and limits.
func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p AuthRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "auth"
	}
	return p.name
}

func (p AuthRateLimitPolicy) scope(kind, value string) string {
	return "auth:" + p.normalizedName() + ":" + kind + ":" + value
}

// rateCheck is one counter a request is charged against.
type rateCheck struct {
	kind  string
	value string
	limit int
	log   map[string]any
}

// AuthRateLimit enforces per-IP and per-email counters for login and register.
// The email is hashed before it becomes part of a key. The first exhausted
// counter rejects the request.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			checks, err := policy.checks(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			for _, check := range checks {
				allowed, count, err := store.FixedWindowAllow(ctx, policy.scope(check.kind, check.value), int64(check.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					respondRateLimited(ctx, logg, w, policy, check.log, count, check.limit)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checks lists the counters for r. Reading the email rewinds the body so the
// handler can decode it again.
func (p AuthRateLimitPolicy) checks(r *http.Request) ([]rateCheck, error) {
	var out []rateCheck
	if ip := ClientIP(r); p.ipLimit > 0 && ip != "" {
		out = append(out, rateCheck{kind: "ip", value: ip, limit: p.ipLimit, log: map[string]any{"scope": "ip", "ip": ip}})
	}
	if p.emailLimit <= 0 {
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBodyBytes))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if email := normalizeEmail(extractEmail(body)); email != "" {
		hash := hashValue(email)
		out = append(out, rateCheck{kind: "email", value: hash, limit: p.emailLimit, log: map[string]any{"scope": "email", "email_hash": hash}})
	}
	return out, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, fields map[string]any, count int64, limit int) {
	if logg != nil {
		fields = maps.Clone(fields)
		fields["policy"] = policy.normalizedName()
		fields["attempts"] = count
		fields["limit"] = limit
		logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", retryAfterSeconds(policy.window))
	err := pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{"window_seconds": int(policy.window.Seconds())})
	responses.WriteError(ctx, nil, w, err)
}

func retryAfterSeconds(window time.Duration) string {
	secs := int64(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
