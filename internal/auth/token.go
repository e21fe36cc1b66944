package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens issues and verifies HS256 tokens bound to a session.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(userID int64, sessionID string) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"sid":     sessionID,
		"exp":     now.Add(t.ttl).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies the signature and expiry and returns the user and session.
func (t *Tokens) Parse(raw string) (int64, string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return 0, "", fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("unexpected claims type")
	}
	uid, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", errors.New("token has no user_id")
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return 0, "", errors.New("token has no sid")
	}
	return int64(uid), sid, nil
}
