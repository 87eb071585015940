package validator

import (
	"context"
	"testing"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

func seedAccessToken(t *testing.T, setup *testValidatorSetup, mods ...func(*storage.AccessToken)) *storage.AccessToken {
	t.Helper()

	token := &storage.AccessToken{
		ID:        "at-1",
		Token:     "opaque-access-token",
		UserID:    "user-1",
		ClientID:  "client-1",
		Scope:     "openid read",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	for _, mod := range mods {
		mod(token)
	}
	if err := setup.store.SaveAccessToken(context.Background(), token); err != nil {
		t.Fatalf("Failed to seed access token: %v", err)
	}
	return token
}

func TestSaveBearerToken(t *testing.T) {
	setup := newTestValidator(t, Config{})
	client := setup.seedClient(t)
	user := setup.seedUser(t)

	req := newRequest()
	req.Client = client
	req.User = user
	req.GrantType = "authorization_code"

	payload := &BearerToken{
		AccessToken: "new-access-token",
		Scope:       "openid read",
	}
	if err := setup.v.SaveBearerToken(context.Background(), payload, req); err != nil {
		t.Fatalf("SaveBearerToken() error = %v", err)
	}

	if payload.ExpiresIn != int64(DefaultAccessTokenTTL.Seconds()) {
		t.Errorf("ExpiresIn = %d, want %d", payload.ExpiresIn, int64(DefaultAccessTokenTTL.Seconds()))
	}

	stored, err := setup.store.GetAccessTokenByToken(context.Background(), "new-access-token")
	if err != nil {
		t.Fatalf("Expected access token persisted: %v", err)
	}
	if stored.UserID != user.ID || stored.ClientID != client.ClientID || stored.Scope != "openid read" {
		t.Errorf("Stored token = %+v", stored)
	}
}

func TestSaveBearerToken_MissingScopeIsContractError(t *testing.T) {
	setup := newTestValidator(t, Config{})
	client := setup.seedClient(t)

	req := newRequest()
	req.Client = client

	err := setup.v.SaveBearerToken(context.Background(), &BearerToken{AccessToken: "x"}, req)
	if err == nil {
		t.Fatal("Expected error for payload without scope")
	}
	if !IsContractError(err) {
		t.Errorf("Expected ContractError, got %T: %v", err, err)
	}
}

func TestSaveBearerToken_ClientCredentialsHasNoOwner(t *testing.T) {
	setup := newTestValidator(t, Config{})
	client := setup.seedClient(t)
	user := setup.seedUser(t)

	req := newRequest()
	req.Client = client
	req.User = user
	req.GrantType = "client_credentials"

	payload := &BearerToken{AccessToken: "cc-token", Scope: "read"}
	if err := setup.v.SaveBearerToken(context.Background(), payload, req); err != nil {
		t.Fatalf("SaveBearerToken() error = %v", err)
	}

	if req.User != nil {
		t.Error("Expected user detached for client_credentials")
	}
	stored, err := setup.store.GetAccessTokenByToken(context.Background(), "cc-token")
	if err != nil {
		t.Fatalf("Expected access token persisted: %v", err)
	}
	if stored.UserID != "" {
		t.Errorf("Expected ownerless token, got user %q", stored.UserID)
	}
}

func TestSaveBearerToken_WithRefreshTokenCreatesPair(t *testing.T) {
	setup := newTestValidator(t, Config{})
	client := setup.seedClient(t)
	user := setup.seedUser(t)

	req := newRequest()
	req.Client = client
	req.User = user
	req.GrantType = "authorization_code"

	payload := &BearerToken{
		AccessToken:  "pair-access",
		RefreshToken: "pair-refresh",
		Scope:        "read",
	}
	if err := setup.v.SaveBearerToken(context.Background(), payload, req); err != nil {
		t.Fatalf("SaveBearerToken() error = %v", err)
	}

	at, err := setup.store.GetAccessTokenByToken(context.Background(), "pair-access")
	if err != nil {
		t.Fatalf("Expected access token persisted: %v", err)
	}
	rt, err := setup.store.GetRefreshTokenByToken(context.Background(), "pair-refresh")
	if err != nil {
		t.Fatalf("Expected refresh token persisted: %v", err)
	}
	if rt.AccessTokenID != at.ID {
		t.Errorf("Refresh token links %q, want %q", rt.AccessTokenID, at.ID)
	}
}

func TestValidateBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		scopes []string
		mod    func(*storage.AccessToken)
		want   bool
	}{
		{
			name:   "valid token with covered scopes",
			token:  "opaque-access-token",
			scopes: []string{"read"},
			want:   true,
		},
		{
			name:   "valid token full scope set",
			token:  "opaque-access-token",
			scopes: []string{"openid", "read"},
			want:   true,
		},
		{
			name:   "scope not granted",
			token:  "opaque-access-token",
			scopes: []string{"write"},
			want:   false,
		},
		{
			name:   "expired token",
			token:  "opaque-access-token",
			scopes: []string{"read"},
			mod: func(at *storage.AccessToken) {
				at.ExpiresAt = time.Now().Add(-time.Minute)
			},
			want: false,
		},
		{
			name:   "unknown token",
			token:  "never-issued",
			scopes: []string{"read"},
			want:   false,
		},
		{
			name:   "empty token",
			token:  "",
			scopes: []string{"read"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := newTestValidator(t, Config{})
			setup.seedClient(t)
			setup.seedUser(t)
			mods := []func(*storage.AccessToken){}
			if tt.mod != nil {
				mods = append(mods, tt.mod)
			}
			seedAccessToken(t, setup, mods...)

			req := newRequest()
			ok, err := setup.v.ValidateBearerToken(context.Background(), tt.token, tt.scopes, req)
			if err != nil {
				t.Fatalf("ValidateBearerToken() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("ValidateBearerToken() = %v, want %v", ok, tt.want)
			}
			if tt.want {
				if req.AccessToken == nil {
					t.Error("Expected access token bound to request")
				}
				if req.User == nil || req.User.ID != "user-1" {
					t.Error("Expected token user bound to request")
				}
				if req.Client == nil || req.Client.ClientID != "client-1" {
					t.Error("Expected token client bound to request")
				}
			}
		})
	}
}

func TestRevokeToken(t *testing.T) {
	t.Run("access token by hint", func(t *testing.T) {
		setup := newTestValidator(t, Config{})
		at := seedAccessToken(t, setup)

		if err := setup.v.RevokeToken(context.Background(), at.Token, "access_token", newRequest()); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if _, err := setup.store.GetAccessTokenByToken(context.Background(), at.Token); !storage.IsNotFound(err) {
			t.Error("Expected access token deleted")
		}
	})

	t.Run("refresh token takes its access token along", func(t *testing.T) {
		setup := newTestValidator(t, Config{})
		at := seedAccessToken(t, setup)
		rt := &storage.RefreshToken{
			ID:            "rt-1",
			Token:         "opaque-refresh-token",
			UserID:        "user-1",
			ClientID:      "client-1",
			AccessTokenID: at.ID,
			CreatedAt:     time.Now(),
		}
		if err := setup.store.SaveRefreshToken(context.Background(), rt); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		if err := setup.v.RevokeToken(context.Background(), rt.Token, "refresh_token", newRequest()); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if _, err := setup.store.GetRefreshTokenByToken(context.Background(), rt.Token); !storage.IsNotFound(err) {
			t.Error("Expected refresh token deleted")
		}
		if _, err := setup.store.GetAccessToken(context.Background(), at.ID); !storage.IsNotFound(err) {
			t.Error("Expected linked access token deleted")
		}
	})

	t.Run("wrong hint falls back to the other type", func(t *testing.T) {
		setup := newTestValidator(t, Config{})
		rt := &storage.RefreshToken{
			ID:        "rt-2",
			Token:     "refresh-under-access-hint",
			UserID:    "user-1",
			ClientID:  "client-1",
			CreatedAt: time.Now(),
		}
		if err := setup.store.SaveRefreshToken(context.Background(), rt); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		if err := setup.v.RevokeToken(context.Background(), rt.Token, "access_token", newRequest()); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if _, err := setup.store.GetRefreshTokenByToken(context.Background(), rt.Token); !storage.IsNotFound(err) {
			t.Error("Expected refresh token found and deleted despite access_token hint")
		}
	})

	t.Run("unknown token is a silent no-op", func(t *testing.T) {
		setup := newTestValidator(t, Config{})
		if err := setup.v.RevokeToken(context.Background(), "ghost", "bogus-hint", newRequest()); err != nil {
			t.Errorf("RevokeToken() error = %v, want nil", err)
		}
	})
}

// staticAuthenticator approves a single username/password pair
type staticAuthenticator struct {
	username string
	password string
	user     *storage.User
}

func (a *staticAuthenticator) Authenticate(_ context.Context, username, password string) (*storage.User, error) {
	if username == a.username && password == a.password {
		return a.user, nil
	}
	return nil, nil
}

func TestValidateUser(t *testing.T) {
	setup := newTestValidator(t, Config{})
	user := setup.seedUser(t)
	setup.v.SetPasswordAuthenticator(&staticAuthenticator{
		username: "alice",
		password: "hunter2",
		user:     user,
	})

	req := newRequest()
	ok, err := setup.v.ValidateUser(context.Background(), "alice", "hunter2", nil, req)
	if err != nil {
		t.Fatalf("ValidateUser() error = %v", err)
	}
	if !ok {
		t.Error("Expected valid credentials to pass")
	}
	if req.User == nil || req.User.ID != user.ID {
		t.Error("Expected user bound to request")
	}

	ok, err = setup.v.ValidateUser(context.Background(), "alice", "wrong", nil, newRequest())
	if err != nil {
		t.Fatalf("ValidateUser() error = %v", err)
	}
	if ok {
		t.Error("Expected wrong password to fail")
	}
}

func TestValidateUser_NoAuthenticator(t *testing.T) {
	setup := newTestValidator(t, Config{})

	ok, err := setup.v.ValidateUser(context.Background(), "alice", "hunter2", nil, newRequest())
	if err != nil {
		t.Fatalf("ValidateUser() error = %v", err)
	}
	if ok {
		t.Error("Expected failure without an installed authenticator")
	}
}
