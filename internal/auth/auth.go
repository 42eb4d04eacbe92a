// Package auth guards the plan endpoint with short-lived HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	// Audience every plan token must carry.
	Audience = "fortifit/plan"
	keyID    = "fortifit"

	subjectKey = "auth.subject"
)

var errMissingBearer = errors.New("missing bearer token")

// IssueToken mints a token for subject that expires after ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("invalid token ttl %s", ttl)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	token.Header["kid"] = keyID

	return token.SignedString([]byte(secret))
}

// Verify parses a token and returns its subject.
func Verify(secret, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token. An empty
// secret disables the check.
func Middleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			raw, err := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err == nil {
				var subject string
				if subject, err = Verify(secret, raw); err == nil {
					c.Set(subjectKey, subject)
					return next(c)
				}
			}
			c.Logger().Debugf("rejected request: %v", err)
			return c.JSON(http.StatusUnauthorized, map[string]any{"ok": false, "error": "Unauthorized"})
		}
	}
}

// Subject returns the authenticated subject stored by Middleware.
func Subject(c echo.Context) string {
	s, _ := c.Get(subjectKey).(string)
	return s
}

func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingBearer
	}
	return strings.TrimSpace(token), nil
}
