package middleware

import (
	"context"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/observability"
)

type claimsContextKey struct{}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// token claims in the request context.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondWithError(w, r, errors.NewErrorEnvelope("UNAUTHORIZED", "authorization token required"))
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				if observability.ServerLogger != nil {
					observability.ServerLogger.Debug("Token verification failed",
						zap.String("path", r.URL.Path),
						zap.Error(err))
				}
				respondWithError(w, r, errors.NewErrorEnvelope("UNAUTHORIZED", "invalid or expired token"))
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ClaimsFromContext(r.Context()).IsAdmin() {
			respondWithError(w, r, errors.NewErrorEnvelope("FORBIDDEN", "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns nil for unauthenticated requests.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims
}
