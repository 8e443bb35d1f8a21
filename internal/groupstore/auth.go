package groupstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth issues and verifies HS256 access tokens. The subject claim is
// the device id; refresh tokens are opaque and live in the store.
type Auth struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewAuth(secret []byte, accessTTL time.Duration) *Auth {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Auth{secret: secret, accessTTL: accessTTL, now: time.Now}
}

func (a *Auth) IssueAccess(deviceID string) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess returns the device id carried by a valid token.
func (a *Auth) VerifyAccess(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("access token without subject")
	}
	return claims.Subject, nil
}

type ctxKey int

const deviceKey ctxKey = 0

// deviceID extracts the authenticated device from a request context.
func deviceID(ctx context.Context) string {
	id, _ := ctx.Value(deviceKey).(string)
	return id
}

// Middleware rejects requests without a valid bearer token and stores
// the device id in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id, err := a.VerifyAccess(raw)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), deviceKey, id)))
	})
}
