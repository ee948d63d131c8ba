package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLimiter) ResetHits(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func seededRepo(t *testing.T) *store.MemoryStore {
	t.Helper()
	repo := store.NewMemoryStore()
	seed, err := store.LoadSeed(nil)
	require.NoError(t, err)
	require.NoError(t, store.ApplySeed(context.Background(), repo, seed))
	return repo
}

func roleID(t *testing.T, repo store.Repository, name string) int64 {
	t.Helper()
	r, err := repo.GetRoleByName(context.Background(), name)
	require.NoError(t, err)
	return r.ID
}

func TestDeveloperRoleIsProtected(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)
	svc := NewAccessService(repo)
	devID := roleID(t, repo, models.DeveloperRole)

	for _, actor := range []*models.Principal{adminPrincipal(), developerPrincipal()} {
		_, err := svc.UpdateRole(ctx, actor, devID, RoleInput{Name: "DEVELOPER", Permissions: []string{PermProductsCreate}})
		assert.ErrorIs(t, err, ErrUnauthorized, actor.Username)

		err = svc.DeleteRole(ctx, actor, devID)
		assert.ErrorIs(t, err, ErrUnauthorized, actor.Username)

		_, err = svc.CreateRole(ctx, actor, RoleInput{Name: "developer"})
		assert.ErrorIs(t, err, ErrUnauthorized, actor.Username)
	}

	staffID := roleID(t, repo, "STAFF")
	_, err := svc.UpdateRole(ctx, adminPrincipal(), staffID, RoleInput{Name: " Developer "})
	assert.ErrorIs(t, err, ErrUnauthorized)

	still, err := repo.GetRoleByID(ctx, devID)
	require.NoError(t, err)
	assert.Equal(t, models.DeveloperRole, still.Name)
}

func TestRoleLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)
	svc := NewAccessService(repo)
	admin := adminPrincipal()

	role, err := svc.CreateRole(ctx, admin, RoleInput{
		Name:        "GUDANG",
		Permissions: []string{PermProductsUpdate, PermTransactionsRead, PermProductsUpdate},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{PermProductsUpdate, PermTransactionsRead}, []string(role.Permissions))

	_, err = svc.CreateRole(ctx, admin, RoleInput{Name: "GUDANG"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.CreateRole(ctx, admin, RoleInput{Name: "X", Permissions: []string{"products:fly"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "permissions", verr.Fields[0].Field)

	updated, err := svc.UpdateRole(ctx, admin, role.ID, RoleInput{Name: "WAREHOUSE", Permissions: []string{PermTransactionsRead}})
	require.NoError(t, err)
	assert.Equal(t, "WAREHOUSE", updated.Name)

	_, err = svc.CreateRole(ctx, principalWith(PermRolesUpdate), RoleInput{Name: "NOPE"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	user, err := svc.CreateUser(ctx, admin, UserInput{Username: "gudang1", Password: "rahasia123", RoleID: role.ID})
	require.NoError(t, err)

	err = svc.DeleteRole(ctx, admin, role.ID)
	assert.ErrorIs(t, err, ErrInUse)

	require.NoError(t, svc.DeleteUser(ctx, admin, user.ID))
	require.NoError(t, svc.DeleteRole(ctx, admin, role.ID))
}

func TestUserManagement(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)
	svc := NewAccessService(repo)
	admin := adminPrincipal()
	staffID := roleID(t, repo, "STAFF")
	devID := roleID(t, repo, models.DeveloperRole)

	user, err := svc.CreateUser(ctx, admin, UserInput{Username: " kasir ", Password: "rahasia123", RoleID: staffID})
	require.NoError(t, err)
	assert.Equal(t, "kasir", user.Username)
	assert.Equal(t, "STAFF", user.RoleName)
	assert.NoError(t, CheckPassword("rahasia123", user.PasswordHash))

	_, err = svc.CreateUser(ctx, admin, UserInput{Username: "short", Password: "123", RoleID: staffID})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Fields[0].Field)

	_, err = svc.CreateUser(ctx, admin, UserInput{Username: "nopass", RoleID: staffID})
	require.ErrorAs(t, err, &verr)

	_, err = svc.CreateUser(ctx, admin, UserInput{Username: "ghost", Password: "rahasia123", RoleID: 99999})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role_id", verr.Fields[0].Field)

	// only developers may hand out the developer role
	_, err = svc.CreateUser(ctx, admin, UserInput{Username: "root2", Password: "rahasia123", RoleID: devID})
	assert.ErrorIs(t, err, ErrUnauthorized)
	dev, err := svc.CreateUser(ctx, developerPrincipal(), UserInput{Username: "root2", Password: "rahasia123", RoleID: devID})
	require.NoError(t, err)
	err = svc.DeleteUser(ctx, admin, dev.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	before := user.PasswordHash
	updated, err := svc.UpdateUser(ctx, admin, user.ID, UserInput{Username: "kasir", RoleID: staffID})
	require.NoError(t, err)
	assert.Equal(t, before, updated.PasswordHash)

	updated, err = svc.UpdateUser(ctx, admin, user.ID, UserInput{Username: "kasir", Password: "baru12345", RoleID: staffID})
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("baru12345", updated.PasswordHash))

	self := adminPrincipal()
	self.UserID = user.ID
	assert.ErrorIs(t, svc.DeleteUser(ctx, self, user.ID), ErrSelfDelete)
	require.NoError(t, svc.DeleteUser(ctx, admin, user.ID))
}

func TestBootstrapDeveloperIsRepeatable(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)
	svc := NewAccessService(repo)

	user, created, err := svc.BootstrapDeveloper(ctx, "root", "supersecret")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.BootstrapDeveloper(ctx, "root", "different-pass")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	_, _, err = svc.BootstrapDeveloper(ctx, "other", "short")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func newAuthFixture(t *testing.T, limiter LoginLimiter) (*AuthService, *models.User) {
	t.Helper()
	repo := seededRepo(t)
	access := NewAccessService(repo)
	user, err := access.CreateUser(context.Background(), adminPrincipal(), UserInput{
		Username: "kasir",
		Password: "rahasia123",
		RoleID:   roleID(t, repo, "STAFF"),
	})
	require.NoError(t, err)
	auth := NewAuthService(repo, limiter, AuthConfig{Secret: "test-secret", TokenTTL: time.Hour})
	return auth, user
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	auth, user := newAuthFixture(t, nil)

	resp, err := auth.Login(ctx, "kasir", "rahasia123")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, user.ID, resp.User.ID)

	principal, err := auth.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, "STAFF", principal.Role)
	assert.True(t, principal.Has(PermTransactionsRead))
	assert.False(t, principal.Has(PermProductsDelete))

	_, err = auth.Login(ctx, "kasir", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "nobody", "rahasia123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	auth, user := newAuthFixture(t, nil)

	_, err := auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: user.ID})
	signed, err := forged.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = auth.Authenticate(ctx, signed)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	resp, err := auth.Login(ctx, "kasir", "rahasia123")
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.Authenticate(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLoginThrottling(t *testing.T) {
	ctx := context.Background()
	limiter := &mockLimiter{}
	auth, _ := newAuthFixture(t, limiter)

	limiter.On("Hit", mock.Anything, "login:kasir", 15*time.Minute).Return(int64(6), nil).Once()
	_, err := auth.Login(ctx, "Kasir", "rahasia123")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	limiter.On("Hit", mock.Anything, "login:kasir", 15*time.Minute).Return(int64(2), nil).Once()
	limiter.On("ResetHits", mock.Anything, "login:kasir").Return(nil).Once()
	_, err = auth.Login(ctx, "kasir", "rahasia123")
	require.NoError(t, err)

	limiter.On("Hit", mock.Anything, "login:kasir", 15*time.Minute).Return(int64(0), errors.New("redis down")).Once()
	limiter.On("ResetHits", mock.Anything, "login:kasir").Return(errors.New("redis down")).Once()
	_, err = auth.Login(ctx, "kasir", "rahasia123")
	require.NoError(t, err)

	limiter.AssertExpectations(t)
}
