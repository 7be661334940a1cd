// ABOUTME: Signed session token issuance and verification for gatehouse
// ABOUTME: Uses HS256 JWTs carrying account id, email, and a fixed expiry

package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors. Every failure mode of Verify is one of these two; they are
// data for the caller, never a reason to abort the request pipeline.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 32

// DefaultTTL is the session token lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Identity is the verified payload of a session token.
type Identity struct {
	AccountID int64
	Email     string
}

// Verifier validates a presented token and extracts the identity it carries.
type Verifier interface {
	Verify(tokenString string) (Identity, error)
}

// Issuer issues and verifies HS256 signed session tokens. It is stateless
// and safe for concurrent use; the secret is fixed at construction.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates a token issuer with the given signing secret and token
// lifetime. A ttl of zero selects DefaultTTL. Short secrets are rejected so
// that misconfiguration is caught at process start, not per request.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: secret, ttl: ttl}, nil
}

// Issue creates a signed token for the given account. The subject claim holds
// the decimal account id, matching the x-user-id header the gate emits.
func (i *Issuer) Issue(accountID int64, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(accountID, 10),
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates signature, algorithm, and expiry, and returns the identity
// encoded in the token. All failures map to ErrInvalidToken or ErrExpiredToken.
func (i *Issuer) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC is acceptable; an attacker must not be able to pick the alg
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	accountID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: malformed sub claim", ErrInvalidToken)
	}

	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return Identity{}, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}

	return Identity{AccountID: accountID, Email: email}, nil
}
