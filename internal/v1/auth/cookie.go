// Package auth implements the username cookie. This is identification, not
// authentication: the cookie binds a browser to a display name and is
// signed only so seats cannot be hijacked by editing it.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/parlorhq/parlor/internal/v1/types"
)

// CookieName is the cookie carrying the signed username token.
const CookieName = "username"

// GuestSuffix marks usernames taken from a query parameter instead of a
// login cookie.
const GuestSuffix = " (Guest)"

const maxUsernameLength = 64

var (
	ErrEmptyUsername   = errors.New("username is empty")
	ErrUsernameTooLong = fmt.Errorf("username exceeds %d characters", maxUsernameLength)
)

// Cookies issues and verifies username cookies.
type Cookies struct {
	secret []byte
	policy *bluemonday.Policy
	ttl    time.Duration
}

// NewCookies creates a Cookies helper signing with the given secret.
func NewCookies(secret string) *Cookies {
	return &Cookies{
		secret: []byte(secret),
		policy: bluemonday.StrictPolicy(),
		ttl:    30 * 24 * time.Hour,
	}
}

// Sanitize strips markup from a raw username and enforces length limits.
func (c *Cookies) Sanitize(raw string) (types.Username, error) {
	clean := strings.TrimSpace(c.policy.Sanitize(raw))
	if clean == "" {
		return "", ErrEmptyUsername
	}
	if len(clean) > maxUsernameLength {
		return "", ErrUsernameTooLong
	}
	return types.Username(clean), nil
}

// Issue signs a token for the given username.
func (c *Cookies) Issue(username types.Username) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(username),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify parses a token and returns the username it was issued for.
func (c *Cookies) Verify(tokenString string) (types.Username, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("token carries no username")
	}
	return types.Username(claims.Subject), nil
}

// RequestUsername resolves the username for a request: the login cookie
// when present and valid, otherwise the "username" query parameter with
// the guest suffix. The second return is false when neither is usable.
func (c *Cookies) RequestUsername(ctx *gin.Context) (types.Username, bool) {
	if raw, err := ctx.Cookie(CookieName); err == nil {
		if name, err := c.Verify(raw); err == nil {
			return name, true
		}
	}
	if query := ctx.Query("username"); query != "" {
		if name, err := c.Sanitize(query); err == nil {
			return name + GuestSuffix, true
		}
	}
	return "", false
}
