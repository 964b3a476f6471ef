package api

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned when a presented session token is malformed,
// tampered with, signed with the wrong secret or expired.
var ErrInvalidToken = errors.New("invalid token")

const defaultTokenTTL = 24 * time.Hour

// TokenAuth issues and validates HS256 session tokens.
type TokenAuth struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenAuth creates a TokenAuth signing with the given secret. A zero ttl
// falls back to 24 hours.
func NewTokenAuth(secret []byte, ttl time.Duration) *TokenAuth {
	if len(secret) == 0 {
		panic("api.NewTokenAuth: empty secret")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenAuth{
		secret: secret,
		ttl:    ttl,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:    time.Now,
	}
}

// Issue signs a session token for the given user.
func (a *TokenAuth) Issue(userID int64, email string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(userID, 10),
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(a.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify validates a session token and returns the principal it carries.
// It never panics on malformed input.
func (a *TokenAuth) Verify(tokenStr string) (Principal, error) {
	parsed, err := a.parser.ParseWithClaims(tokenStr, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	if !claims.VerifyExpiresAt(a.now().Unix(), true) {
		return Principal{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Principal{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad sub", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)

	return Principal{UserID: userID, Email: email}, nil
}
