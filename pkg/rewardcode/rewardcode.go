// Package rewardcode generates and normalizes the six character codes
// customers present to staff when redeeming a reward.
package rewardcode

import (
	"errors"
	"regexp"
	"strings"

	"github.com/stampbook/stampbook-backend/pkg/security"
)

const (
	Length   = 6
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	codeRe = regexp.MustCompile(`^[A-Z0-9]{6}$`)

	ErrInvalidFormat = errors.New("reward code must be 6 uppercase letters or digits")
)

// Generate returns a fresh uniformly random code.
func Generate() (string, error) {
	return security.RandomString(Alphabet, Length)
}

// Normalize trims and uppercases raw and validates the result.
func Normalize(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codeRe.MatchString(code) {
		return "", ErrInvalidFormat
	}
	return code, nil
}

// Valid reports whether code is already in canonical form.
func Valid(code string) bool {
	return codeRe.MatchString(code)
}
