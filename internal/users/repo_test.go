package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/dbtest"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t).DB())

	user, err := repo.Create(ctx, CreateUserDTO{
		Email:        "  Alice@Example.com ",
		PasswordHash: "hash",
		DisplayName:  "Alice",
		Role:         enums.UserRoleCustomer,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, user.ID)
	require.Equal(t, "alice@example.com", user.Email)

	found, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	require.Equal(t, enums.UserRoleCustomer, found.Role)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryUpdateLastLogin(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t).DB())

	user, err := repo.Create(ctx, CreateUserDTO{Email: "m@example.com", PasswordHash: "h", DisplayName: "M", Role: enums.UserRoleMerchant})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))

	found, err := repo.FindByEmail(ctx, "m@example.com")
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	require.True(t, found.LastLoginAt.Equal(at))

	err = repo.UpdateLastLogin(ctx, uuid.New(), at)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t).DB())

	_, err := repo.Create(ctx, CreateUserDTO{Email: "dup@example.com", PasswordHash: "h", DisplayName: "A", Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateUserDTO{Email: " DUP@example.com", PasswordHash: "h", DisplayName: "B", Role: enums.UserRoleMerchant})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestFromModelOmitsPasswordHash(t *testing.T) {
	dto := FromModel(CreateUserDTO{Email: "x@example.com", PasswordHash: "secret", DisplayName: " X ", Role: enums.UserRoleMerchant}.ToModel())
	require.Equal(t, "X", dto.DisplayName)
	require.Equal(t, enums.UserRoleMerchant, dto.Role)
	require.Nil(t, FromModel(nil))
}
