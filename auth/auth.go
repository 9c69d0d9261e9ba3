// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	pollCodePrefix = "POLL-"
	pollCodeLength = 6
	base36Chars    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Identity is the authenticated user a bearer token stands for.
type Identity struct {
	UserID   string
	Username string
}

// IssueToken signs an HS256 token for the user, valid for ttl.
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)

	claims["sub"] = id.UserID
	claims["name"] = id.Username
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry and returns the identity.
func ParseToken(secret, tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Identity{UserID: sub, Username: name}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value, or returns "".
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GeneratePollCode creates a shareable code such as POLL-7KQ2ZD.
// Uppercase base36 keeps it easy to read aloud and type.
func GeneratePollCode() (string, error) {
	b := make([]byte, pollCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate poll code: %w", err)
	}
	return pollCodePrefix + base36Encode(b), nil
}

// base36Encode maps each byte onto one base36 character.
// The modulo bias (256 % 36) is acceptable for a collision-checked code.
func base36Encode(data []byte) string {
	out := make([]byte, len(data))
	for i, c := range data {
		out[i] = base36Chars[int(c)%len(base36Chars)]
	}
	return string(out)
}
