package middleware

import (
	"context"
	"github.com/adamlounds/glucoscope/models"
)

type ctxKeyAuthn int

// AuthnKey holds the *models.Authn of the current request.
const AuthnKey ctxKeyAuthn = 0

func WithAuthn(ctx context.Context, authn *models.Authn) context.Context {
	return context.WithValue(ctx, AuthnKey, authn)
}

// GetAuthn returns nil when no authn middleware ran.
func GetAuthn(ctx context.Context) *models.Authn {
	authn, _ := ctx.Value(AuthnKey).(*models.Authn)
	return authn
}

// UserID is the user whose readings the request reads and writes, or "" for
// callers not linked to a user.
func UserID(ctx context.Context) string {
	return GetAuthn(ctx).UserID()
}
