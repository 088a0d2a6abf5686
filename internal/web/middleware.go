// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

// Authenticator resolves an access token to the identity of an approved account.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string, allowed ...auth.Role) (auth.Identity, error)
}

type identityKey struct{}

// IdentityFrom returns the identity attached by RequireRoles.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// RequireRoles admits requests carrying a bearer access token of an approved
// account whose role is in roles. With no roles every role is admitted.
// Only the account id and role reach the handler. Rejections are logged to
// logger, or to slog.Default when it is nil.
func RequireRoles(authn Authenticator, logger *slog.Logger, roles ...auth.Role) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, logger, oops.Code(auth.CodeMissingCredential).Errorf("missing bearer token"))
				return
			}

			id, err := authn.Authenticate(r.Context(), token, roles...)
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// bearerToken extracts the credential of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
