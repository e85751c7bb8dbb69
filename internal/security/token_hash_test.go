package security

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

func TestHashTokenDependsOnPepper(t *testing.T) {
	a := HashToken("token", "pepper-1234567890")
	b := HashToken("token", "pepper-0987654321")
	if a == b {
		t.Fatal("expected pepper to change hash")
	}
	if !TokenHashEqual("token", a, "pepper-1234567890") {
		t.Fatal("expected hash match")
	}
	if TokenHashEqual("other", a, "pepper-1234567890") {
		t.Fatal("expected mismatch for other token")
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Verify(hash, "correct horse") {
		t.Fatal("expected password to verify")
	}
	if h.Verify(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestPasswordHasherDecoyMatchesCost(t *testing.T) {
	h := NewPasswordHasher(5)
	decoy := h.Decoy()
	cost, err := bcrypt.Cost([]byte(decoy))
	if err != nil {
		t.Fatalf("decoy is not a bcrypt hash: %v", err)
	}
	if cost != 5 {
		t.Fatalf("expected decoy cost 5, got %d", cost)
	}
	if h.Decoy() != decoy {
		t.Fatal("expected the decoy to be generated once")
	}
	if h.Verify(decoy, "") || h.Verify(decoy, "decoy") {
		t.Fatal("decoy must not verify")
	}
}

func TestVerifyTOTP(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "notesync", AccountName: "u@example.com"})
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(key.Secret(), at)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if !VerifyTOTP(key.Secret(), code, at.Add(20*time.Second)) {
		t.Fatal("expected code to verify within skew")
	}
	if VerifyTOTP(key.Secret(), code, at.Add(10*time.Minute)) {
		t.Fatal("expected stale code to fail")
	}
	if VerifyTOTP("", code, at) {
		t.Fatal("expected empty secret to fail")
	}
}
