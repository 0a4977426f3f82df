package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chalarca/jwtauth/internal/hash"
	"github.com/chalarca/jwtauth/internal/identity"
	"github.com/chalarca/jwtauth/internal/models"
	"github.com/chalarca/jwtauth/internal/refresh"
	"github.com/chalarca/jwtauth/internal/repo"
	"github.com/chalarca/jwtauth/internal/token"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type recordingEvents struct {
	events []map[string]any
}

func (r *recordingEvents) PublishEvent(_ context.Context, _ string, event any) error {
	if m, ok := event.(map[string]any); ok {
		r.events = append(r.events, m)
	}
	return nil
}

type testEnv struct {
	Svc    *AuthService
	DB     *gorm.DB
	Events *recordingEvents
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.UserRole{}, &models.UserClaim{}, &models.RefreshToken{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	events := &recordingEvents{}
	svc := &AuthService{
		Identity: &identity.GormSource{
			DB:              db,
			MaxFailedLogins: 2,
			LockoutWindow:   10 * time.Second,
		},
		Signer: &token.Signer{
			Key:      testKey,
			Issuer:   "jwtauth-test",
			Audience: "jwtauth-clients",
			TTL:      15 * time.Minute,
		},
		Refresh: &refresh.Manager{
			Store: &repo.GormRefreshStore{DB: db},
			TTL:   7 * 24 * time.Hour,
		},
		Events: events,
	}

	return &testEnv{Svc: svc, DB: db, Events: events}
}

func (env *testEnv) seedAlice(t *testing.T) *models.User {
	t.Helper()
	pwHash, err := hash.Password("P@ssw0rd!")
	require.NoError(t, err)
	user := &models.User{
		ID:             "7b1f4b7e-55f3-4b87-9c30-0a2f4c9b9f11",
		Username:       "alice",
		Email:          "alice@example.com",
		PasswordHash:   pwHash,
		EmailConfirmed: true,
	}
	require.NoError(t, env.DB.Create(user).Error)
	require.NoError(t, env.DB.Create(&models.UserRole{UserID: user.ID, Role: "admin"}).Error)
	return user
}

func (env *testEnv) refreshRecordCount(t *testing.T, username string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.DB.Model(&models.RefreshToken{}).Where("username = ?", username).Count(&count).Error)
	return count
}

func TestAuthService_Login_HappyPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	res, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.Equal(t, []string{"admin"}, res.Roles)
	assert.True(t, res.IsVerified)

	// The access token decodes to the same username and verifies under the
	// configured key.
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(res.AccessToken, claims, func(t *jwt.Token) (any, error) {
		return testKey, nil
	})
	require.NoError(t, err)
	require.True(t, tok.Valid)
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "admin", claims["roles"])

	assert.EqualValues(t, 1, env.refreshRecordCount(t, "alice"))

	require.Len(t, env.Events.events, 1)
	assert.Equal(t, "user_login", env.Events.events[0]["type"])
}

func TestAuthService_Login_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "", password: "secret"},
		{name: "empty password", username: "alice", password: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := env.Svc.Login(ctx, tt.username, tt.password, "10.0.0.1")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

// Unknown username and wrong password must be indistinguishable.
func TestAuthService_Login_BadCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	_, errUnknown := env.Svc.Login(ctx, "nobody", "P@ssw0rd!", "10.0.0.1")
	require.ErrorIs(t, errUnknown, ErrBadCredentials)

	_, errWrongPw := env.Svc.Login(ctx, "alice", "wrong", "10.0.0.1")
	require.ErrorIs(t, errWrongPw, ErrBadCredentials)

	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestAuthService_Login_LockoutOnThirdAttempt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.Svc.Login(ctx, "alice", "wrong", "10.0.0.1")
		require.ErrorIs(t, err, ErrBadCredentials)
	}

	// Third attempt is rejected as locked even with the correct password.
	_, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestAuthService_SecondLogin_RotatesRefreshToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	first, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)
	second, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.EqualValues(t, 1, env.refreshRecordCount(t, "alice"))

	// The first refresh token was invalidated by the rotation.
	_, err = env.Svc.RefreshExchange(ctx, first.AccessToken, first.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_RefreshExchange_HappyPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	login, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)

	res, err := env.Svc.RefreshExchange(ctx, login.AccessToken, login.RefreshToken, "10.0.0.2")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(res.AccessToken, claims, func(t *jwt.Token) (any, error) {
		return testKey, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])

	assert.EqualValues(t, 1, env.refreshRecordCount(t, "alice"))

	// Single-use rotation: the exchanged-away refresh token is dead.
	_, err = env.Svc.RefreshExchange(ctx, login.AccessToken, login.RefreshToken, "10.0.0.2")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_RefreshExchange_AcceptsExpiredAccessToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	user := env.seedAlice(t)
	ctx := context.Background()

	login, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)

	// Re-sign an access token that expired two hours ago.
	expiredSigner := &token.Signer{
		Key:      testKey,
		Issuer:   "jwtauth-test",
		Audience: "jwtauth-clients",
		TTL:      15 * time.Minute,
		Now:      func() time.Time { return time.Now().Add(-2 * time.Hour) },
	}
	expired, err := expiredSigner.Issue(user, nil, []string{"admin"}, "10.0.0.1")
	require.NoError(t, err)

	res, err := env.Svc.RefreshExchange(ctx, expired, login.RefreshToken, "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
}

func TestAuthService_RefreshExchange_RejectsWrongAlgorithmToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	login, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)

	hs384 := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{"sub": "alice"})
	wrongAlg, err := hs384.SignedString(testKey)
	require.NoError(t, err)

	// Rejected before any rotation happens: the stored refresh token must
	// still be valid afterwards.
	_, err = env.Svc.RefreshExchange(ctx, wrongAlg, login.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidToken)

	res, err := env.Svc.RefreshExchange(ctx, login.AccessToken, login.RefreshToken, "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
}

func TestAuthService_RefreshExchange_RejectsForeignRefreshToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	ctx := context.Background()

	login, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.NoError(t, err)

	other, err := refresh.NewToken()
	require.NoError(t, err)

	_, err = env.Svc.RefreshExchange(ctx, login.AccessToken, other, "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidToken)
}

type downStore struct{}

func (downStore) GetByUsername(context.Context, string) (*models.RefreshToken, error) {
	return nil, errors.New("store down")
}
func (downStore) Insert(context.Context, *models.RefreshToken) error { return errors.New("store down") }
func (downStore) Update(context.Context, *models.RefreshToken) error { return errors.New("store down") }

// A store outage is a hard failure of the exchange, never a silent fallback.
func TestAuthService_Login_StoreOutageSurfaces(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAlice(t)
	env.Svc.Refresh.Store = downStore{}
	ctx := context.Background()

	_, err := env.Svc.Login(ctx, "alice", "P@ssw0rd!", "10.0.0.1")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestAuthService_Register(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.Svc.Register(ctx, "bob", "bob@example.com", "S3cret!pw")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	assert.Equal(t, "bob", user.Username)

	_, err = env.Svc.Register(ctx, "bob", "bob2@example.com", "S3cret!pw")
	require.ErrorIs(t, err, ErrUserExists)

	// The new account can log in right away.
	res, err := env.Svc.Login(ctx, "bob", "S3cret!pw", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}
