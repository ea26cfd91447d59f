package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFileTokens(t *testing.T) {
	now := time.Now()
	f := NewFileTokens("jwt-secret", 30*time.Minute)
	f.Now = func() time.Time { return now }

	tok, exp, err := f.Issue(8)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if exp.Sub(now.UTC()) != 30*time.Minute {
		t.Errorf("exp = %s", exp)
	}
	if err := f.Verify(tok, 8); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := f.Verify(tok, 9); !errors.Is(err, ErrInvalidFileToken) {
		t.Errorf("other document: %v", err)
	}
	if err := NewFileTokens("other", time.Minute).Verify(tok, 8); !errors.Is(err, ErrInvalidFileToken) {
		t.Errorf("other secret: %v", err)
	}
	if err := f.Verify("", 8); !errors.Is(err, ErrInvalidFileToken) {
		t.Errorf("empty token: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if err := f.Verify(tok, 8); !errors.Is(err, ErrInvalidFileToken) {
		t.Errorf("expired token: %v", err)
	}
}

func TestFileTokens_RejectsAdminSession(t *testing.T) {
	f := NewFileTokens("jwt-secret", time.Minute)
	claims := jwt.MapClaims{"sub": "8", "role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix()}
	admin, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("jwt-secret"))
	if err := f.Verify(admin, 8); !errors.Is(err, ErrInvalidFileToken) {
		t.Fatalf("admin token accepted as file token: %v", err)
	}
}
