package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgAuth "github.com/stampbook/stampbook-backend/pkg/auth"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/security"
	"gorm.io/gorm"
)

type stubUserRepo struct {
	user        *models.User
	lastLoginAt time.Time
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user != nil && s.user.Email == email {
		return s.user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastLoginAt = at
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "stampbook", ExpirationMinutes: 30}
}

func TestServiceLoginMintsRoleClaim(t *testing.T) {
	password := "merchant-secret"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "merchant@example.com",
		PasswordHash: mustHashPassword(t, password),
		DisplayName:  "Corner Cafe",
		Role:         enums.UserRoleMerchant,
	}
	repo := &stubUserRepo{user: user}
	now := time.Now().UTC().Truncate(time.Second)
	svc, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: testJWTConfig(), Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " Merchant@Example.com ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleMerchant || claims.UserID != user.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if resp.ExpiresIn != 1800 {
		t.Fatalf("expected 1800s expiry, got %d", resp.ExpiresIn)
	}
	if !repo.lastLoginAt.Equal(now) {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "customer@example.com",
		PasswordHash: mustHashPassword(t, "right-password"),
		Role:         enums.UserRoleCustomer,
	}
	svc, err := NewService(ServiceParams{UserRepo: &stubUserRepo{user: user}, JWTConfig: testJWTConfig()})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	cases := []LoginRequest{
		{Email: user.Email, Password: "wrong-password"},
		{Email: "unknown@example.com", Password: "right-password"},
		{Email: "   ", Password: "right-password"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("expected unauthorized for %q, got %v", req.Email, err)
		}
	}
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without user repository")
	}
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}
