package auth_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/carely/go-auth"
	"github.com/carely/go-auth/config"
	"github.com/carely/go-auth/persistence"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const testPassword = "s3cret-pass"

var (
	hashOnce   sync.Once
	cachedHash string
)

// passwordHash hashes testPassword once, bcrypt is slow on purpose
func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		require.NoError(t, err)
		cachedHash = h
	})
	return cachedHash
}

func testConfig() config.Auth {
	return config.Auth{
		Secret:      testSecret,
		Expiration:  time.Hour,
		DefaultRole: auth.RoleNameOwner,
		PhoneRegion: "ES",
		PageSize:    20,
	}
}

type fixture struct {
	db      *bun.DB
	repo    auth.RepositoryManager
	tokens  *auth.TokenService
	gateway *auth.Auther
	roles   map[string]*auth.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithDSN(t, ":memory:")
}

// newFileFixture backs the fixture with a sqlite file in a temp dir
func newFileFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithDSN(t, filepath.Join(t.TempDir(), "auth.db"))
}

func newFixtureWithDSN(t *testing.T, dsn string) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.Options{
		Driver: persistence.DriverSQLite,
		DSN:    dsn,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = persistence.Migrate(ctx, db)
	require.NoError(t, err)

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, auth.NewRoleService(repo).
		EnsureRoles(ctx, auth.RoleNameAdmin, auth.RoleNameOwner, auth.RoleNameCarer))

	roles := map[string]*auth.Role{}
	for _, name := range []string{auth.RoleNameAdmin, auth.RoleNameOwner, auth.RoleNameCarer} {
		role, err := repo.Roles().GetByName(ctx, name)
		require.NoError(t, err)
		roles[name] = role
	}

	cfg := testConfig()
	tokens := auth.NewTokenServiceFromConfig(cfg, nil)

	return &fixture{
		db:      db,
		repo:    repo,
		tokens:  tokens,
		gateway: auth.NewAuthenticator(repo, tokens, cfg),
		roles:   roles,
	}
}

// seedUser inserts an active user holding roles without going through bcrypt
func (f *fixture) seedUser(t *testing.T, email string, state auth.AvailabilityState, roles ...string) *auth.User {
	t.Helper()
	ctx := context.Background()

	user, err := f.repo.Users().Create(ctx, &auth.User{
		Email:        email,
		PasswordHash: passwordHash(t),
		Name:         "Test",
		State:        state,
	})
	require.NoError(t, err)

	for _, name := range roles {
		_, err := f.repo.Memberships().InsertTx(ctx, f.db, &auth.Membership{
			UserID: user.ID,
			RoleID: f.roles[name].ID,
		})
		require.NoError(t, err)
	}
	return user
}

func (f *fixture) tokenFor(t *testing.T, email string, roles ...string) string {
	t.Helper()
	token, err := f.tokens.Issue(email, roles, time.Now())
	require.NoError(t, err)
	return token
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
