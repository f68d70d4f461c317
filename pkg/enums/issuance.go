package enums

import (
	"fmt"
	"strings"
)

// IssuanceMethod is how a merchant grants stamps.
type IssuanceMethod string

const (
	IssuanceMethodDirect IssuanceMethod = "direct"
	IssuanceMethodQR     IssuanceMethod = "qr"
)

func (m IssuanceMethod) IsValid() bool {
	return m == IssuanceMethodDirect || m == IssuanceMethodQR
}

func ParseIssuanceMethod(value string) (IssuanceMethod, error) {
	method := IssuanceMethod(strings.ToLower(strings.TrimSpace(value)))
	if !method.IsValid() {
		return "", fmt.Errorf("invalid issuance method %q", value)
	}
	return method, nil
}

// SecurityLevel selects the entropy of a QR code token.
type SecurityLevel string

const (
	SecurityLevelStandard SecurityLevel = "standard"
	SecurityLevelHigh     SecurityLevel = "high"
)

// ParseSecurityLevel treats an empty value as standard.
func ParseSecurityLevel(value string) (SecurityLevel, error) {
	switch SecurityLevel(strings.ToLower(strings.TrimSpace(value))) {
	case "", SecurityLevelStandard:
		return SecurityLevelStandard, nil
	case SecurityLevelHigh:
		return SecurityLevelHigh, nil
	}
	return "", fmt.Errorf("invalid security level %q", value)
}

// TokenBytes is the number of random bytes backing a code at this level.
func (l SecurityLevel) TokenBytes() int {
	if l == SecurityLevelHigh {
		return 32
	}
	return 16
}
