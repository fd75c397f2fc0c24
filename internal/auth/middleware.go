package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// claimsKey stores the validated token claims on the request context.
const claimsKey contextKey = "auth.claims"

// Middleware rejects requests without a valid bearer token and stores the
// token's claims on the request context for downstream handlers.
func Middleware(service Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := service.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext returns the claims the middleware stored, if any.
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return token
}
