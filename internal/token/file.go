package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// fileAudience scopes file tokens so an admin session JWT signed with the
// same key can never be replayed as one (and vice versa).
const fileAudience = "document-file"

var ErrInvalidFileToken = errors.New("invalid file token")

// FileTokens mints HS256 JWTs that let a viewer page fetch one document
// without repeating the secure hash in every asset URL.
type FileTokens struct {
	secret []byte
	ttl    time.Duration
	Now    func() time.Time
}

func NewFileTokens(secret string, ttl time.Duration) *FileTokens {
	return &FileTokens{secret: []byte(secret), ttl: ttl, Now: time.Now}
}

// Issue returns a token valid for documentID only.
func (f *FileTokens) Issue(documentID uint64) (string, time.Time, error) {
	now := f.Now().UTC()
	exp := now.Add(f.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(documentID, 10),
		Audience:  jwt.ClaimStrings{fileAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, expiry, audience and that the token was issued
// for documentID.
func (f *FileTokens) Verify(raw string, documentID uint64) error {
	if raw == "" {
		return ErrInvalidFileToken
	}
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return f.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(fileAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(f.Now),
	)
	if err != nil || !tok.Valid {
		return ErrInvalidFileToken
	}
	if claims.Subject != strconv.FormatUint(documentID, 10) {
		return ErrInvalidFileToken
	}
	return nil
}
