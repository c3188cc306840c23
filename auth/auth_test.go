package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	a := New("test-secret", 30*time.Minute)

	token, err := a.IssueToken("user-123", time.Now())
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	userID, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("user id = %q, want user-123", userID)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	a := New("test-secret", 30*time.Minute)

	token, err := a.IssueToken("user-123", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	if _, err := a.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	issuer := New("secret-a", 30*time.Minute)
	verifier := New("secret-b", 30*time.Minute)

	token, err := issuer.IssueToken("user-123", time.Now())
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	a := New("test-secret", 30*time.Minute)
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := a.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword(hash, "hunter2") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "hunter3") {
		t.Error("wrong password accepted")
	}
}
