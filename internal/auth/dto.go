package auth

import (
	"github.com/stampbook/stampbook-backend/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest contains the payload required to create an account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,notblank"`
	Role        string `json:"role" validate:"required,oneof=customer merchant"`
}

// TokenResponse is returned by both login and register.
type TokenResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int            `json:"expires_in"`
	User        *users.UserDTO `json:"user"`
	// MergedPendingCustomer is set when stamps collected before signup were
	// attached to the new account.
	MergedPendingCustomer bool `json:"merged_pending_customer,omitempty"`
}
