package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/NarenCandy/wild-animal-detection/internal/auth"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey ContextKey = "user"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthMiddleware creates an HTTP middleware for JWT authentication. The
// token comes from the Authorization header.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validator, ExtractToken)
}

// StreamAuthMiddleware is AuthMiddleware that also accepts the "token" query
// parameter, for websocket upgrades that cannot set headers. Mount it only on
// routes that bypass request logging.
func StreamAuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validator, func(r *http.Request) (string, error) {
		if r.Header.Get("Authorization") == "" {
			if q := r.URL.Query().Get("token"); q != "" {
				return q, nil
			}
		}
		return ExtractToken(r)
	})
}

func authenticate(validator TokenValidator, extract func(*http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extract(r)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					writeUnauthorized(w, "token has expired")
				} else {
					writeUnauthorized(w, "Could not validate credentials")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}

// ExtractToken returns the bearer token of the Authorization header
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Not authenticated")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// WithUser stores user claims in a context
func WithUser(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// RequireAuth returns the authenticated user or ErrInvalidToken
func RequireAuth(ctx context.Context) (*auth.Claims, error) {
	claims := GetUserFromContext(ctx)
	if claims == nil {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"detail":"` + detail + `"}`))
}
