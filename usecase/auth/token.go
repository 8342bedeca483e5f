package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims binds a token to a server-side session.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (t *TokenIssuer) Issue(userID, sessionID string, expiresAt time.Time) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := t.now()
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *TokenIssuer) Parse(raw string) (*Claims, error) {
	if raw == "" || len(t.secret) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return claims, nil
}
