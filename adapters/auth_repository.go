package repository

import (
	"context"
	"github.com/adamlounds/glucoscope/models"
	slogctx "github.com/veqryn/slog-context"
	"strings"
)

// ConfigAuthRepository serves auth subjects configured at startup.
// Tokens have the form name-hash.
type ConfigAuthRepository struct {
	APISecretHash string
	DefaultRole   string
	AdminUserID   string
	subjects      map[string]*models.AuthSubject
}

func NewConfigAuthRepository(APISecretHash string, DefaultRole string, AdminUserID string, subjects map[string]*models.AuthSubject) *ConfigAuthRepository {
	if subjects == nil {
		subjects = map[string]*models.AuthSubject{}
	}
	return &ConfigAuthRepository{APISecretHash, DefaultRole, AdminUserID, subjects}
}

func (p ConfigAuthRepository) GetAPISecretHash(ctx context.Context) string {
	return p.APISecretHash
}

func (p ConfigAuthRepository) GetDefaultRole(ctx context.Context) string {
	return p.DefaultRole
}

func (p ConfigAuthRepository) GetAdminUserID(ctx context.Context) string {
	return p.AdminUserID
}

var unknownAuthSubject = &models.AuthSubject{Name: "anonymous", RoleNames: []string{}}

func (p ConfigAuthRepository) FetchAuthSubjectByAuthToken(ctx context.Context, authToken string) *models.AuthSubject {
	log := slogctx.FromCtx(ctx)
	if authToken == "" {
		return unknownAuthSubject
	}
	if _, _, found := strings.Cut(authToken, "-"); !found {
		log.Debug("auth token is invalid, should be name-hash")
		return unknownAuthSubject
	}

	authSubject, ok := p.subjects[authToken]
	if !ok {
		log.Debug("auth token not recognized")
		return unknownAuthSubject
	}
	return authSubject
}
