package enums

import (
	"fmt"
	"strings"
)

// UserRole maps to the user_role enum in Postgres.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleMerchant UserRole = "merchant"
)

var validUserRoles = []UserRole{UserRoleCustomer, UserRoleMerchant}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole accepts any casing.
func ParseUserRole(value string) (UserRole, error) {
	normalized := UserRole(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
