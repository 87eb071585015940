package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-core/storage"
)

// testStore connects to the database named by POSTGRES_TEST_DSN.
// Tests are skipped when the variable is unset or the database is
// unreachable. The schema is migrated and test rows are removed after
// each test.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("Skipping test: POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn, nil)
	if err != nil {
		t.Skipf("Skipping test: could not connect to postgres: %v", err)
	}
	require.NoError(t, store.Migrate(ctx), "Migrate failed")

	t.Cleanup(func() {
		cleanupTestRows(t, store)
		store.Close()
	})

	cleanupTestRows(t, store)
	return store
}

func cleanupTestRows(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{
		"oauth_id_tokens", "oauth_refresh_tokens", "oauth_access_tokens",
		"oauth_grants", "oauth_users", "oauth_clients",
	} {
		if _, err := s.pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Logf("Warning: failed to clean %s: %v", table, err)
		}
	}
}

func TestNew_MissingDSN(t *testing.T) {
	_, err := New(context.Background(), "", nil)
	assert.Error(t, err, "expected error for missing DSN")
}

func TestClientRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ClientID:     "test-client",
		ClientSecret: "s3cret",
		ClientType:   storage.ClientTypeConfidential,
		GrantTypes:   []string{storage.GrantAuthorizationCode, storage.GrantPassword},
		RedirectURIs: []string{"https://example.com/callback"},
	}
	require.NoError(t, s.SaveClient(ctx, client))

	got, err := s.GetClient(ctx, "test-client")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.ClientSecret)
	assert.Equal(t, client.GrantTypes, got.GrantTypes)
	assert.Equal(t, client.RedirectURIs, got.RedirectURIs)

	got.Disabled = true
	require.NoError(t, s.UpdateClient(ctx, got))
	updated, err := s.GetClient(ctx, "test-client")
	require.NoError(t, err)
	assert.True(t, updated.Disabled, "Disabled flag not persisted")

	require.NoError(t, s.DeleteClient(ctx, "test-client"))
	_, err = s.GetClient(ctx, "test-client")
	assert.True(t, storage.IsNotFound(err), "expected ErrNotFound, got: %v", err)
}

func TestUserRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	user := &storage.User{
		ID:        uuid.NewString(),
		Username:  "alice",
		LastLogin: time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.False(t, got.LastLogin.IsZero(), "LastLogin lost in round trip")

	// Users without a login yet carry a NULL last_login.
	fresh := &storage.User{ID: uuid.NewString(), Username: "bob"}
	require.NoError(t, s.SaveUser(ctx, fresh))
	gotFresh, err := s.GetUser(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, gotFresh.LastLogin.IsZero(), "LastLogin = %v, want zero", gotFresh.LastLogin)
}

func TestGrantRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustSaveClient(t, s, "client-1")
	userID := mustSaveUser(t, s, "alice")

	grant := &storage.Grant{
		Code:        "authz-code",
		ClientID:    "client-1",
		UserID:      userID,
		Scope:       "openid read",
		RedirectURI: "https://example.com/callback",
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, s.SaveGrant(ctx, grant))

	got, err := s.GetGrant(ctx, "authz-code")
	require.NoError(t, err)
	assert.Equal(t, grant.Scope, got.Scope)
	assert.Equal(t, grant.RedirectURI, got.RedirectURI)

	require.NoError(t, s.DeleteGrant(ctx, "authz-code"))
	err = s.DeleteGrant(ctx, "authz-code")
	assert.True(t, storage.IsNotFound(err), "second DeleteGrant: %v", err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustSaveClient(t, s, "client-1")
	userID := mustSaveUser(t, s, "alice")

	at := &storage.AccessToken{
		ID:        uuid.NewString(),
		Token:     "opaque-1",
		UserID:    userID,
		ClientID:  "client-1",
		Scope:     "read",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.SaveAccessToken(ctx, at))

	got, err := s.GetAccessTokenByToken(ctx, "opaque-1")
	require.NoError(t, err)
	assert.Equal(t, at.ID, got.ID)

	got.Token = "opaque-2"
	got.Scope = "read write"
	require.NoError(t, s.UpdateAccessToken(ctx, got))

	_, err = s.GetAccessTokenByToken(ctx, "opaque-1")
	assert.True(t, storage.IsNotFound(err), "old token string still resolves: %v", err)
	moved, err := s.GetAccessTokenByToken(ctx, "opaque-2")
	require.NoError(t, err)
	assert.Equal(t, "read write", moved.Scope)

	require.NoError(t, s.DeleteAccessToken(ctx, at.ID))
	err = s.DeleteAccessToken(ctx, at.ID)
	assert.True(t, storage.IsNotFound(err), "second DeleteAccessToken: %v", err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustSaveClient(t, s, "client-1")
	userID := mustSaveUser(t, s, "alice")
	atID := uuid.NewString()
	require.NoError(t, s.SaveAccessToken(ctx, &storage.AccessToken{
		ID: atID, Token: "opaque-1", UserID: userID, ClientID: "client-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	rt := &storage.RefreshToken{
		ID:            uuid.NewString(),
		Token:         "refresh-1",
		UserID:        userID,
		ClientID:      "client-1",
		AccessTokenID: atID,
	}
	require.NoError(t, s.SaveRefreshToken(ctx, rt))

	got, err := s.GetRefreshTokenByToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, atID, got.AccessTokenID)

	require.NoError(t, s.DeleteRefreshToken(ctx, rt.ID))
	_, err = s.GetRefreshTokenByToken(ctx, "refresh-1")
	assert.True(t, storage.IsNotFound(err), "deleted refresh token still resolves: %v", err)
}

func TestIDTokenRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustSaveClient(t, s, "client-1")
	userID := mustSaveUser(t, s, "alice")

	idt := &storage.IDToken{
		ID:        uuid.NewString(),
		Token:     "eyJ.fake.jwt",
		UserID:    userID,
		ClientID:  "client-1",
		Scope:     "openid",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.SaveIDToken(ctx, idt))

	got, err := s.GetIDTokenByToken(ctx, "eyJ.fake.jwt")
	require.NoError(t, err)
	assert.Equal(t, idt.ID, got.ID)

	require.NoError(t, s.DeleteIDToken(ctx, idt.ID))
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.Atomic(ctx, func(tx storage.Store) error {
		if err := tx.SaveAccessToken(ctx, &storage.AccessToken{
			ID: uuid.NewString(), Token: "rollback-token",
			ExpiresAt: time.Now().Add(time.Hour),
		}); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	require.Error(t, err, "expected Atomic to propagate the failure")

	_, err = s.GetAccessTokenByToken(ctx, "rollback-token")
	assert.True(t, storage.IsNotFound(err), "row survived a rolled-back transaction: %v", err)
}

func TestAtomic_CommitsAndLocks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	atID := uuid.NewString()
	require.NoError(t, s.SaveAccessToken(ctx, &storage.AccessToken{
		ID: atID, Token: "locked-token", ExpiresAt: time.Now().Add(time.Hour),
	}))

	err := s.Atomic(ctx, func(tx storage.Store) error {
		at, err := tx.GetAccessTokenForUpdate(ctx, atID)
		if err != nil {
			return err
		}
		at.Token = "rewritten-token"
		return tx.UpdateAccessToken(ctx, at)
	})
	require.NoError(t, err)

	_, err = s.GetAccessTokenByToken(ctx, "rewritten-token")
	assert.NoError(t, err, "committed rewrite not visible")
}

func TestDeleteExpiredGrants(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustSaveClient(t, s, "client-1")
	userID := mustSaveUser(t, s, "alice")

	stale := &storage.Grant{
		Code: "stale", ClientID: "client-1", UserID: userID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	fresh := &storage.Grant{
		Code: "fresh", ClientID: "client-1", UserID: userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.SaveGrant(ctx, stale))
	require.NoError(t, s.SaveGrant(ctx, fresh))

	_, err := s.DeleteExpiredGrants(ctx)
	require.NoError(t, err)

	_, err = s.GetGrant(ctx, "stale")
	assert.True(t, storage.IsNotFound(err), "expired grant survived: %v", err)
	_, err = s.GetGrant(ctx, "fresh")
	assert.NoError(t, err, "live grant removed")
}

func mustSaveClient(t *testing.T, s *Store, clientID string) {
	t.Helper()
	err := s.SaveClient(context.Background(), &storage.Client{
		ClientID:   clientID,
		ClientType: storage.ClientTypeConfidential,
	})
	require.NoError(t, err, "SaveClient failed")
}

func mustSaveUser(t *testing.T, s *Store, username string) string {
	t.Helper()
	id := uuid.NewString()
	err := s.SaveUser(context.Background(), &storage.User{ID: id, Username: username})
	require.NoError(t, err, "SaveUser failed")
	return id
}
