// Package token implements the two credentials that gate the workflow: the
// signed single-use action token carried by emailed admin links, and the
// short-lived file-serving token the viewer uses to fetch a document.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is a state change an emailed link may perform.  Both drive the
// request to accepted; they differ only in audit logs.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReaccept Action = "reaccept"
)

// ParseAction validates an action taken from a URL or request body.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAccept, ActionReaccept:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidToken, s)
}

var (
	ErrInvalidToken      = errors.New("invalid action token")
	ErrExpiredToken      = errors.New("action token expired")
	ErrSignatureMismatch = errors.New("action token signature mismatch")
	ErrTokenAlreadyUsed  = errors.New("action token already used")
)

// Marker records consumed tokens.  MarkUsed must be an atomic
// insert-if-absent: it returns true only for the call that created the key.
type Marker interface {
	MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// LinkBuilder turns a token into the URL that is emailed.
type LinkBuilder interface {
	ActionURL(requestID uint64, action, token string) string
}

type payload struct {
	RequestID uint64 `json:"request_id"`
	Action    Action `json:"action"`
	IssuedAt  int64  `json:"issued_at"`
	TTL       int64  `json:"ttl"` // seconds
}

// Issued is a freshly signed token and the link carrying it.
type Issued struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// ActionTokens issues and verifies signed action tokens.  The secret is
// injected so the key's lifecycle stays with configuration.
type ActionTokens struct {
	secret []byte
	ttl    time.Duration
	grace  time.Duration
	marker Marker
	links  LinkBuilder
	// Now is the clock; tests replace it to move past expiry.
	Now func() time.Time
}

// NewActionTokens builds the issuer/verifier.  Markers live for ttl+grace so
// a token can never outlive its marker.
func NewActionTokens(secret []byte, ttl, grace time.Duration, marker Marker, links LinkBuilder) *ActionTokens {
	if len(secret) == 0 || marker == nil {
		panic("token: NewActionTokens needs a secret and a marker")
	}
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &ActionTokens{secret: secret, ttl: ttl, grace: grace, marker: marker, links: links, Now: time.Now}
}

// TTL returns how long issued tokens stay valid.
func (a *ActionTokens) TTL() time.Duration { return a.ttl }

func (a *ActionTokens) sign(requestID uint64, action Action, issuedAt int64) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(strconv.FormatUint(requestID, 10)))
	mac.Write([]byte(action))
	mac.Write([]byte(strconv.FormatInt(issuedAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue signs a token authorizing action on requestID.
func (a *ActionTokens) Issue(requestID uint64, action Action) (Issued, error) {
	if requestID == 0 {
		return Issued{}, fmt.Errorf("%w: request id required", ErrInvalidToken)
	}
	if _, err := ParseAction(string(action)); err != nil {
		return Issued{}, err
	}
	p := payload{
		RequestID: requestID,
		Action:    action,
		IssuedAt:  a.Now().Unix(),
		TTL:       int64(a.ttl / time.Second),
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Issued{}, err
	}
	raw := string(body) + "." + a.sign(p.RequestID, p.Action, p.IssuedAt)
	tok := base64.URLEncoding.EncodeToString([]byte(raw))
	out := Issued{Token: tok}
	if a.links != nil {
		out.URL = a.links.ActionURL(requestID, string(action), tok)
	}
	return out, nil
}

func decode(tok string) (payload, string, error) {
	var p payload
	raw, err := base64.URLEncoding.DecodeString(tok)
	if err != nil {
		// Some mail clients rewrite '-' and '_'; accept the standard alphabet too.
		if raw, err = base64.StdEncoding.DecodeString(tok); err != nil {
			return p, "", ErrInvalidToken
		}
	}
	s := string(raw)
	dot := strings.LastIndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return p, "", ErrInvalidToken
	}
	if err := json.Unmarshal([]byte(s[:dot]), &p); err != nil {
		return p, "", ErrInvalidToken
	}
	sig := s[dot+1:]
	if p.RequestID == 0 || p.IssuedAt <= 0 || p.TTL <= 0 || len(sig) != sha256.Size*2 {
		return p, "", ErrInvalidToken
	}
	if _, err := ParseAction(string(p.Action)); err != nil {
		return p, "", ErrInvalidToken
	}
	return p, sig, nil
}

// Verify checks tok against the request id and action from the URL and, on
// success, consumes it.  Checks run in a fixed order: decoding, structure,
// claim match, expiry, signature, single use.  A second Verify of the same
// token fails with ErrTokenAlreadyUsed even if everything else is fine.
func (a *ActionTokens) Verify(ctx context.Context, requestID uint64, action Action, tok string) error {
	p, sig, err := decode(tok)
	if err != nil {
		return err
	}
	if p.RequestID != requestID || p.Action != action {
		return fmt.Errorf("%w: claims do not match link", ErrInvalidToken)
	}

	// The ttl claim is not signed, so never trust more than we issue.
	ttl := time.Duration(p.TTL) * time.Second
	if ttl > a.ttl {
		ttl = a.ttl
	}
	if a.Now().After(time.Unix(p.IssuedAt, 0).Add(ttl)) {
		return ErrExpiredToken
	}

	canonical := a.sign(p.RequestID, p.Action, p.IssuedAt)
	want, _ := hex.DecodeString(canonical)
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return ErrSignatureMismatch
	}

	// The marker is keyed on the signed claims, not the encoded bytes, so
	// every re-encoding of one token maps to the same key.
	fresh, err := a.marker.MarkUsed(ctx, canonical, a.ttl+a.grace)
	if err != nil {
		return fmt.Errorf("record used token: %w", err)
	}
	if !fresh {
		return ErrTokenAlreadyUsed
	}
	return nil
}
