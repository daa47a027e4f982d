package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/segyhp/emi-engine/pkg/response"
)

type contextKey string

const callerContextKey contextKey = "caller"

// Resolver turns an opaque token into a caller identity
type Resolver interface {
	ResolveCaller(token string) (*Caller, error)
}

func ContextWithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(*Caller)
	return caller, ok && caller != nil
}

// Middleware rejects requests without a valid bearer token
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

			caller, err := resolver.ResolveCaller(token)
			if err != nil {
				response.Unauthorized(w, "Invalid or missing credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

// RequireAdmin must run after Middleware
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			response.Unauthorized(w, "Invalid or missing credentials")
			return
		}
		if !caller.IsAdmin() {
			response.Forbidden(w, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
