package enums

import "fmt"

// RewardGrantState maps to the reward_grant_state enum in Postgres.
// earned -> redeemed and earned -> expired are the only transitions.
type RewardGrantState string

const (
	RewardGrantStateEarned   RewardGrantState = "earned"
	RewardGrantStateRedeemed RewardGrantState = "redeemed"
	RewardGrantStateExpired  RewardGrantState = "expired"
)

var validRewardGrantStates = []RewardGrantState{
	RewardGrantStateEarned,
	RewardGrantStateRedeemed,
	RewardGrantStateExpired,
}

func (s RewardGrantState) IsValid() bool {
	for _, candidate := range validRewardGrantStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s RewardGrantState) IsTerminal() bool {
	return s == RewardGrantStateRedeemed || s == RewardGrantStateExpired
}

func ParseRewardGrantState(value string) (RewardGrantState, error) {
	for _, candidate := range validRewardGrantStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward grant state %q", value)
}
