package repository

import (
	"testing"

	"github.com/adamlounds/glucoscope/models"
	"github.com/stretchr/testify/assert"
)

func TestConfigAuthRepository(t *testing.T) {
	phone := &models.AuthSubject{Name: "phone", UserID: "u1", RoleNames: []string{"logger"}}
	repo := NewConfigAuthRepository("abc123", "denied", "u1", map[string]*models.AuthSubject{
		"phone-358de43470f328f3": phone,
	})
	ctx := contextWithSilentLogger()

	assert.Equal(t, "abc123", repo.GetAPISecretHash(ctx))
	assert.Equal(t, "denied", repo.GetDefaultRole(ctx))
	assert.Equal(t, "u1", repo.GetAdminUserID(ctx))

	assert.Equal(t, phone, repo.FetchAuthSubjectByAuthToken(ctx, "phone-358de43470f328f3"))
	assert.True(t, repo.FetchAuthSubjectByAuthToken(ctx, "").IsAnonymous())
	assert.True(t, repo.FetchAuthSubjectByAuthToken(ctx, "nohyphen").IsAnonymous())
	assert.True(t, repo.FetchAuthSubjectByAuthToken(ctx, "phone-0000").IsAnonymous())
}
