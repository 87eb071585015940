package validator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenHash(t *testing.T) {
	// at_hash of "abc123": urlsafe base64 of the first 16 hex digest chars.
	if got := tokenHash("abc123", 16); got != "NmNhMTNkNTJjYTcwYzg4Mw==" {
		t.Errorf("tokenHash(abc123, 16) = %q", got)
	}
	// c_hash takes twice the prefix.
	if got := tokenHash("abc123", 32); len(got) == 0 || got == tokenHash("abc123", 16) {
		t.Errorf("tokenHash(abc123, 32) = %q", got)
	}
}

func issueIDToken(t *testing.T, setup *testValidatorSetup, payload *BearerToken, mods ...func(*Request)) (string, *Request) {
	t.Helper()

	req := newRequest()
	req.Client = setup.seedClient(t)
	req.User = setup.seedUser(t)
	req.GrantType = "authorization_code"
	for _, mod := range mods {
		mod(req)
	}
	signed, err := setup.v.IssueIDToken(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("IssueIDToken() error = %v", err)
	}
	return signed, req
}

// parseClaims verifies the signature with the test key and returns the
// claim set.
func parseClaims(t *testing.T, setup *testValidatorSetup, signed string) jwt.MapClaims {
	t.Helper()

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims,
		func(tok *jwt.Token) (any, error) { return &setup.v.signingKey.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil || !parsed.Valid {
		t.Fatalf("Failed to verify ID token: %v", err)
	}
	return claims
}

func TestIssueIDToken_Claims(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})

	signed, req := issueIDToken(t, setup, &BearerToken{AccessToken: "abc123"}, func(r *Request) {
		r.Nonce = "n-0S6_WzA2Mj"
		r.Scopes = []string{"openid"}
	})

	claims := parseClaims(t, setup, signed)
	if claims["iss"] != "https://issuer.example" {
		t.Errorf("iss = %v", claims["iss"])
	}
	if claims["sub"] != "user-1" {
		t.Errorf("sub = %v", claims["sub"])
	}
	if claims["aud"] != "client-1" {
		t.Errorf("aud = %v", claims["aud"])
	}
	if claims["nonce"] != "n-0S6_WzA2Mj" {
		t.Errorf("nonce = %v", claims["nonce"])
	}
	if claims["at_hash"] != "NmNhMTNkNTJjYTcwYzg4Mw==" {
		t.Errorf("at_hash = %v", claims["at_hash"])
	}
	if _, ok := claims["c_hash"]; ok {
		t.Error("Unexpected c_hash on a code exchange")
	}
	if _, ok := claims["auth_time"]; !ok {
		t.Error("Missing auth_time")
	}

	// The token is on record and bound to the request.
	if req.IDToken == nil || req.IDToken.Token != signed {
		t.Error("Expected ID token row bound to request")
	}
	if _, err := setup.store.GetIDTokenByToken(context.Background(), signed); err != nil {
		t.Errorf("Expected ID token persisted: %v", err)
	}
}

func TestIssueIDToken_ClientCredentialsPersistsNoUser(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})

	signed, req := issueIDToken(t, setup, &BearerToken{}, func(r *Request) {
		r.GrantType = "client_credentials"
	})

	// The claims still carry the subject, but the stored row belongs to
	// the client alone.
	claims := parseClaims(t, setup, signed)
	if claims["sub"] != "user-1" {
		t.Errorf("sub = %v", claims["sub"])
	}
	if req.IDToken == nil {
		t.Fatal("Expected ID token row bound to request")
	}
	if req.IDToken.UserID != "" {
		t.Errorf("UserID = %q, want empty for client_credentials", req.IDToken.UserID)
	}
	row, err := setup.store.GetIDTokenByToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("Expected ID token persisted: %v", err)
	}
	if row.UserID != "" {
		t.Errorf("Persisted UserID = %q, want empty", row.UserID)
	}
}

func TestIssueIDToken_HashClaimsByResponseType(t *testing.T) {
	tests := []struct {
		name         string
		responseType string
		grantType    string
		payload      *BearerToken
		wantATHash   bool
		wantCHash    bool
	}{
		{
			name:       "code exchange with access token",
			grantType:  "authorization_code",
			payload:    &BearerToken{AccessToken: "tok"},
			wantATHash: true,
		},
		{
			name:         "hybrid code id_token",
			responseType: "code id_token",
			payload:      &BearerToken{Code: "authz-code"},
			wantCHash:    true,
		},
		{
			name:         "hybrid code id_token token",
			responseType: "code id_token token",
			payload:      &BearerToken{AccessToken: "tok", Code: "authz-code"},
			wantATHash:   true,
			wantCHash:    true,
		},
		{
			name:         "implicit id_token token",
			responseType: "id_token token",
			payload:      &BearerToken{AccessToken: "tok"},
			wantATHash:   true,
		},
		{
			name:         "implicit id_token alone",
			responseType: "id_token",
			payload:      &BearerToken{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := newTestValidator(t, Config{
				Issuer:        "https://issuer.example",
				SigningKeyPEM: testSigningKeyPEM(t),
			})

			signed, _ := issueIDToken(t, setup, tt.payload, func(r *Request) {
				r.GrantType = tt.grantType
				r.ResponseType = tt.responseType
			})
			claims := parseClaims(t, setup, signed)

			if _, ok := claims["at_hash"]; ok != tt.wantATHash {
				t.Errorf("at_hash present = %v, want %v", ok, tt.wantATHash)
			}
			if _, ok := claims["c_hash"]; ok != tt.wantCHash {
				t.Errorf("c_hash present = %v, want %v", ok, tt.wantCHash)
			}
		})
	}
}

func TestIssueIDToken_RequiresKeyAndIssuer(t *testing.T) {
	setup := newTestValidator(t, Config{})
	req := newRequest()
	req.Client = setup.seedClient(t)
	req.User = setup.seedUser(t)

	if _, err := setup.v.IssueIDToken(context.Background(), &BearerToken{}, req); err == nil {
		t.Error("Expected error without a signing key")
	}
}

func TestIssueIDToken_RequiresBindings(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})

	_, err := setup.v.IssueIDToken(context.Background(), &BearerToken{}, newRequest())
	if !IsContractError(err) {
		t.Errorf("Expected ContractError, got %T: %v", err, err)
	}
}

func TestValidateIDToken(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})
	signed, _ := issueIDToken(t, setup, &BearerToken{AccessToken: "tok"})

	req := newRequest()
	ok, err := setup.v.ValidateIDToken(context.Background(), signed, []string{"openid"}, req)
	if err != nil {
		t.Fatalf("ValidateIDToken() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected ID token to validate")
	}
	if req.Client == nil || req.Client.ClientID != "client-1" {
		t.Error("Expected client bound from ID token row")
	}
	if req.User == nil || req.User.ID != "user-1" {
		t.Error("Expected user bound from ID token row")
	}
	if len(req.Scopes) != 1 || req.Scopes[0] != "openid" {
		t.Errorf("Scopes = %v", req.Scopes)
	}
}

func TestValidateIDToken_TamperedSignature(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})
	signed, _ := issueIDToken(t, setup, &BearerToken{})

	// Flip the first signature character.
	tampered := []byte(signed)
	pos := strings.LastIndexByte(signed, '.') + 1
	if tampered[pos] == 'A' {
		tampered[pos] = 'B'
	} else {
		tampered[pos] = 'A'
	}

	ok, err := setup.v.ValidateIDToken(context.Background(), string(tampered), nil, newRequest())
	if err != nil {
		t.Fatalf("ValidateIDToken() error = %v", err)
	}
	if ok {
		t.Error("Expected tampered ID token to fail")
	}
}

func TestValidateIDToken_VerifiedButNotOnRecord(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})
	signed, req := issueIDToken(t, setup, &BearerToken{})

	// Revoke the stored row. The signature still verifies.
	if err := setup.store.DeleteIDToken(context.Background(), req.IDToken.ID); err != nil {
		t.Fatalf("Failed to delete ID token: %v", err)
	}

	ok, err := setup.v.ValidateIDToken(context.Background(), signed, nil, newRequest())
	if err != nil {
		t.Fatalf("ValidateIDToken() error = %v", err)
	}
	if ok {
		t.Error("Expected revoked ID token to fail")
	}
}

func TestValidateIDToken_EmptyAndNoKey(t *testing.T) {
	withKey := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})
	if ok, err := withKey.v.ValidateIDToken(context.Background(), "", nil, newRequest()); ok || err != nil {
		t.Errorf("Empty token: got %v, %v", ok, err)
	}

	noKey := newTestValidator(t, Config{})
	if _, err := noKey.v.ValidateIDToken(context.Background(), "anything", nil, newRequest()); err == nil {
		t.Error("Expected error without a signing key")
	}
}

func TestValidateUserMatch(t *testing.T) {
	setup := newTestValidator(t, Config{})
	ok, err := setup.v.ValidateUserMatch(context.Background(), "hint", nil, nil, newRequest())
	if err != nil || !ok {
		t.Errorf("ValidateUserMatch() = %v, %v", ok, err)
	}
}

func TestIssueIDToken_AuthTimeFromLastLogin(t *testing.T) {
	setup := newTestValidator(t, Config{
		Issuer:        "https://issuer.example",
		SigningKeyPEM: testSigningKeyPEM(t),
	})

	signed, req := issueIDToken(t, setup, &BearerToken{})
	claims := parseClaims(t, setup, signed)

	authTime, ok := claims["auth_time"].(float64)
	if !ok {
		t.Fatalf("auth_time = %T %v", claims["auth_time"], claims["auth_time"])
	}
	want := req.User.LastLogin.Unix()
	if int64(authTime) != want {
		t.Errorf("auth_time = %d, want %d", int64(authTime), want)
	}
	if time.Unix(int64(authTime), 0).After(time.Now()) {
		t.Error("auth_time in the future")
	}
}
