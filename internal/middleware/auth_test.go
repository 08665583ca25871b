package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/auth"
)

func TestAuthMiddleware(t *testing.T) {
	jwtm := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwtm.GenerateToken("u1", "a@b.c")
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := RequireAuth(r.Context())
		if err != nil {
			t.Errorf("claims missing: %v", err)
			return
		}
		seen = claims.UserID
	})
	api := AuthMiddleware(jwtm)(next)
	stream := StreamAuthMiddleware(jwtm)(next)

	tests := []struct {
		name   string
		h      http.Handler
		header string
		query  string
		want   int
	}{
		{"bearer", api, "Bearer " + token, "", http.StatusOK},
		{"lowercase scheme", api, "bearer " + token, "", http.StatusOK},
		{"query token refused", api, "", "?token=" + token, http.StatusUnauthorized},
		{"missing", api, "", "", http.StatusUnauthorized},
		{"wrong scheme", api, "Basic " + token, "", http.StatusUnauthorized},
		{"bad token", api, "Bearer nope", "", http.StatusUnauthorized},
		{"stream query token", stream, "", "?token=" + token, http.StatusOK},
		{"stream bearer", stream, "Bearer " + token, "", http.StatusOK},
		{"stream bad query token", stream, "", "?token=nope", http.StatusUnauthorized},
		{"stream missing", stream, "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/users/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && seen != "u1" {
				t.Errorf("want user u1 in context, got %q", seen)
			}
		})
	}
}

func TestRequireAuth_Empty(t *testing.T) {
	if _, err := RequireAuth(httptest.NewRequest(http.MethodGet, "/", nil).Context()); err != auth.ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}
