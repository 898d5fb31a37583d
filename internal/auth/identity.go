// Package auth resolves the calling user from a bearer token and holds the
// ownership predicates the ledger checks before acting.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const callerKey contextKey = "caller_id"

// TokenDuration is the lifetime of tokens minted by IssueToken.
const TokenDuration = 24 * time.Hour

var ErrNoToken = errors.New("no bearer token")

// Resolver turns bearer tokens into caller ids. Sessions and logins live
// elsewhere; this only verifies tokens signed with the shared secret.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// IssueToken signs a token whose subject is userID. A ttl of zero or less
// means TokenDuration.
func (r *Resolver) IssueToken(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = TokenDuration
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}

// Resolve validates tokenString and returns its subject.
func (r *Resolver) Resolve(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware attaches the caller to the request context when a valid bearer
// token is present. Requests without one pass through anonymously so that
// public routes keep working; a malformed or expired token is rejected.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		raw, err := bearerToken(req)
		if errors.Is(err, ErrNoToken) {
			next.ServeHTTP(w, req)
			return
		}
		if err != nil {
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		userID, err := r.Resolve(raw)
		if err != nil {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req.WithContext(WithCaller(req.Context(), userID)))
	})
}

func bearerToken(req *http.Request) (string, error) {
	h := req.Header.Get("Authorization")
	if h == "" {
		return "", ErrNoToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}

// WithCaller returns a context carrying userID as the caller.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey, userID)
}

// CallerFrom returns the caller attached by Middleware, if any.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey).(string)
	return id, ok && id != ""
}
