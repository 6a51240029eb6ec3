package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
)

type ctxKey int

const ctxKeyProviderID ctxKey = iota

// ProviderIDHeader identifies the provider in development setups without a JWT secret.
const ProviderIDHeader = "X-Provider-Id"

func ProviderIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyProviderID).(string)
	return v, ok && v != ""
}

func WithProviderID(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, ctxKeyProviderID, providerID)
}

// RequireProvider authenticates provider routes. With a secret it requires a Bearer HS256
// token whose sub is the provider id; without one it trusts the X-Provider-Id header.
func RequireProvider(secret string) httpx.Middleware {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var providerID string
			if secret != "" {
				token, ok := bearerToken(r.Header.Get("Authorization"))
				if !ok {
					httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
					return
				}
				claims, err := ParseAndVerifyHS256(token, secret)
				if err != nil {
					httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
					return
				}
				providerID = claims.Sub
			} else {
				providerID = strings.TrimSpace(r.Header.Get(ProviderIDHeader))
			}

			if _, err := uuid.Parse(providerID); err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "unknown provider", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithProviderID(r.Context(), providerID)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
