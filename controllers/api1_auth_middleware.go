package controllers

import (
	"github.com/adamlounds/glucoscope/middleware"
	"github.com/adamlounds/glucoscope/models"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"net/http"
)

type ApiV1AuthnMiddleware struct {
	*models.AuthService
}

func (a ApiV1AuthnMiddleware) SetAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		apiSecretHash := r.Header.Get("api-secret")
		if apiSecretHash == "" {
			apiSecretHash = r.URL.Query().Get("secret")
		}
		authToken := r.URL.Query().Get("token")

		authn := a.AuthFromHTTP(ctx, apiSecretHash, authToken)

		ctx = middleware.WithAuthn(ctx, authn)
		ctx = slogctx.Append(ctx,
			slog.String("requestId", chimiddleware.GetReqID(ctx)),
			slog.Any("authn", authn),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authz rejects requests whose subject lacks requiredPermission: 401 when no
// credentials were recognised, 403 otherwise.
func (a ApiV1AuthnMiddleware) Authz(requiredPermission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogctx.FromCtx(ctx)
			authn := middleware.GetAuthn(ctx)

			if a.IsPermitted(ctx, authn, requiredPermission) {
				next.ServeHTTP(w, r)
				return
			}

			log.Info("authz: not permitted", slog.String("requiredPermission", requiredPermission))
			if authn == nil || authn.AuthSubject.IsAnonymous() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
