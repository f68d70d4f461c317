package enums

import "fmt"

// TransactionType maps to the stamp_transaction_type enum in Postgres.
type TransactionType string

const (
	TransactionTypeStamp  TransactionType = "stamp"
	TransactionTypeReward TransactionType = "reward"
	TransactionTypeRedeem TransactionType = "redeem"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeStamp,
	TransactionTypeReward,
	TransactionTypeRedeem,
}

// IsValid reports whether the value matches the canonical ledger entry type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
