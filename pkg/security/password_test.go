package security_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/security"
)

func fastConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", fastConfig())
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=32768,t=1,p=1$") {
		t.Fatalf("unexpected hash prefix %q", hash)
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword failed for the correct password ok=%v err=%v", ok, err)
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := security.HashPassword("", fastConfig()); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
	} {
		if _, err := security.VerifyPassword("irrelevant", encoded); err != security.ErrInvalidHash {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestRandomToken(t *testing.T) {
	token, err := security.RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != 32 {
		t.Fatalf("expected 32 decoded bytes, got %d err=%v", len(raw), err)
	}
	other, _ := security.RandomToken(32)
	if other == token {
		t.Fatal("expected distinct tokens")
	}
	if _, err := security.RandomToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestRandomString(t *testing.T) {
	const alphabet = "AB"
	s, err := security.RandomString(alphabet, 64)
	if err != nil {
		t.Fatalf("RandomString: %v", err)
	}
	if len(s) != 64 || strings.Trim(s, alphabet) != "" {
		t.Fatalf("unexpected output %q", s)
	}
	if _, err := security.RandomString("", 4); err == nil {
		t.Fatal("expected error for empty alphabet")
	}
}
