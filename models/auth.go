package models

import (
	"context"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"strings"
)

type AuthService struct {
	AuthRepository
}

// AuthSubject is a caller. UserID is whose data they read and write; it is
// empty for anonymous callers.
type AuthSubject struct {
	Name      string
	UserID    string
	RoleNames []string
}

type Role struct {
	Name        string
	Permissions []string
}

type AuthRepository interface {
	GetAPISecretHash(ctx context.Context) string
	GetDefaultRole(ctx context.Context) string
	GetAdminUserID(ctx context.Context) string
	FetchAuthSubjectByAuthToken(ctx context.Context, authToken string) *AuthSubject
}

type Authn struct {
	AuthSubject   *AuthSubject
	ApiSecretHash string
	AuthToken     string
}

func (a Authn) LogValue() slog.Value {
	hasSecret := a.ApiSecretHash != ""
	hasToken := a.AuthToken != ""
	var name string
	if a.AuthSubject != nil {
		name = a.AuthSubject.Name
	}
	return slog.GroupValue(
		slog.Bool("hasSecret", hasSecret),
		slog.Bool("hasToken", hasToken),
		slog.String("authSubject", name),
	)
}

// UserID returns the user the request acts for, if any.
func (a *Authn) UserID() string {
	if a == nil || a.AuthSubject == nil {
		return ""
	}
	return a.AuthSubject.UserID
}

func (service *AuthService) AuthFromHTTP(ctx context.Context, apiSecretHash string, authToken string) *Authn {
	authSubject := service.FetchAuthSubject(ctx, apiSecretHash, authToken)

	return &Authn{
		ApiSecretHash: apiSecretHash,
		AuthToken:     authToken,
		AuthSubject:   authSubject,
	}
}

func (service *AuthService) FetchAuthSubject(ctx context.Context, apiSecretHash string, authToken string) *AuthSubject {
	log := slogctx.FromCtx(ctx)
	if service.IsAPISecretHashValid(ctx, apiSecretHash) {
		log.Debug("api secret is valid, it's the admin user")
		return &AuthSubject{Name: "admin", UserID: service.GetAdminUserID(ctx), RoleNames: []string{"admin"}}
	}

	as := service.FetchAuthSubjectByAuthToken(ctx, authToken)
	if as.IsAnonymous() {
		// api-secret header can contain a token
		as = service.FetchAuthSubjectByAuthToken(ctx, apiSecretHash)
		if !as.IsAnonymous() {
			log.Debug("api secret was an auth token", slog.String("name", as.Name))
		}
	}
	if as.IsAnonymous() {
		return &AuthSubject{Name: as.Name, RoleNames: []string{service.GetDefaultRole(ctx)}}
	}
	return as
}

var defaultRoles = map[string]*Role{
	"admin":    {Name: "admin", Permissions: []string{"*"}},
	"denied":   {Name: "denied", Permissions: []string{}},
	"readable": {Name: "readable", Permissions: []string{"api:*:read"}},
	"logger": {Name: "logger", Permissions: []string{
		"api:readings:create",
		"api:meals:create",
		"api:medications:create",
	}},
	"insights": {Name: "insights", Permissions: []string{
		"api:forecast:read",
		"api:insights:read",
	}},
}

func (service *AuthService) IsPermitted(ctx context.Context, a *Authn, requiredPermission string) bool {
	log := slogctx.FromCtx(ctx)
	if a == nil || a.AuthSubject == nil {
		return false
	}
	for _, roleName := range a.AuthSubject.RoleNames {
		role, ok := defaultRoles[roleName]
		if !ok {
			log.Debug("role not found", "roleName", roleName)
			continue
		}

		for _, permission := range role.Permissions {
			if permissionMatches(permission, requiredPermission) {
				log.Debug("role is allowed",
					slog.String("roleName", roleName),
					slog.String("perm", permission),
					slog.String("requiredPerm", requiredPermission),
				)
				return true
			}
		}
	}

	return false
}

// permissionMatches implements the subset of shiro-style permissions we use:
// colon separated parts where "*" matches any single part, and a lone "*"
// matches everything. eg api:*:read grants api:forecast:read
func permissionMatches(granted string, required string) bool {
	if granted == "*" {
		return true
	}
	gParts := strings.Split(granted, ":")
	rParts := strings.Split(required, ":")
	if len(gParts) != len(rParts) {
		return false
	}
	for i := range gParts {
		if gParts[i] != "*" && gParts[i] != rParts[i] {
			return false
		}
	}
	return true
}

func (service *AuthService) IsAPISecretHashValid(ctx context.Context, apiSecretHash string) (isValid bool) {
	return apiSecretHash != "" && apiSecretHash == service.AuthRepository.GetAPISecretHash(ctx)
}

func (as *AuthSubject) IsAnonymous() bool {
	return as == nil || as.Name == "anonymous"
}
