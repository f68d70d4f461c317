package enums

import "fmt"

// OperationType names a client-side queued operation. Each type has its own queue.
type OperationType string

const (
	OperationIssueStamp   OperationType = "ISSUE_STAMP"
	OperationRedeemReward OperationType = "REDEEM_REWARD"
)

var validOperationTypes = []OperationType{OperationIssueStamp, OperationRedeemReward}

// OperationTypes lists every queue in drain order.
func OperationTypes() []OperationType {
	out := make([]OperationType, len(validOperationTypes))
	copy(out, validOperationTypes)
	return out
}

func (t OperationType) IsValid() bool {
	for _, candidate := range validOperationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseOperationType(value string) (OperationType, error) {
	for _, candidate := range validOperationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation type %q", value)
}

// OperationStatus tracks a queued operation.
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusDeadLetter OperationStatus = "dead_letter"
)
