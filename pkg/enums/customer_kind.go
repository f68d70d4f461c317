package enums

import "fmt"

// CustomerKind distinguishes registered users from pending (email-only)
// customers on customer cards, grants and ledger rows.
type CustomerKind string

const (
	CustomerKindUser    CustomerKind = "user"
	CustomerKindPending CustomerKind = "pending"
)

func (k CustomerKind) IsValid() bool {
	return k == CustomerKindUser || k == CustomerKindPending
}

func ParseCustomerKind(value string) (CustomerKind, error) {
	kind := CustomerKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid customer kind %q", value)
	}
	return kind, nil
}
