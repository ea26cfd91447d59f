package utils // package utils provides helpers for admin sessions and credential minting

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role the service knows.
const RoleAdmin = "ADMIN"

// AccessToken represents a signed admin session JWT along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for the administrator.  The
// claims are sub (admin email), role, exp and iat, which is what
// middleware.JWTAuth and middleware.RequireRole read back.
func NewAccessToken(secret, subject string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": RoleAdmin,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewSecureHash mints the per-grant credential attached to an accepted
// request: the SHA-256 of 32 random bytes and the request id, hex encoded
// (64 characters).
func NewSecureHash(requestID uint64) (string, error) {
	buf := make([]byte, 40)
	if _, err := rand.Read(buf[:32]); err != nil {
		return "", err
	}
	for i := 0; i < 8; i++ {
		buf[32+i] = byte(requestID >> (8 * i))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
