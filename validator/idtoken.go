package validator

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/oauth-core/storage"
)

// tokenHash computes the OIDC token hash claims (at_hash, c_hash):
// the first hexChars characters of the lowercase hex SHA-256 digest,
// urlsafe-base64 encoded with padding.
func tokenHash(value string, hexChars int) string {
	sum := sha256.Sum256([]byte(value))
	digest := hex.EncodeToString(sum[:])
	return base64.URLEncoding.EncodeToString([]byte(digest[:hexChars]))
}

// IssueIDToken mints, signs and persists an OpenID Connect ID token for
// the current request. The at_hash and c_hash claims are included per
// the flow: at_hash whenever an access token rides along with the ID
// token, c_hash on the hybrid response types that return a code next to
// it.
func (v *Validator) IssueIDToken(ctx context.Context, payload *BearerToken, req *Request) (string, error) {
	if v.signingKey == nil {
		return "", fmt.Errorf("no ID token signing key configured")
	}
	if v.config.Issuer == "" {
		return "", fmt.Errorf("no ID token issuer configured")
	}
	if req.Client == nil {
		return "", newContractError("IssueIDToken", "no client bound to request")
	}
	if req.User == nil {
		return "", newContractError("IssueIDToken", "no user bound to request")
	}
	if payload == nil {
		payload = &BearerToken{}
	}

	now := time.Now()
	expires := now.Add(v.config.IDTokenTTL)

	authTime := req.User.LastLogin
	if authTime.IsZero() {
		authTime = now
	}

	claims := jwt.MapClaims{
		"iss":       v.config.Issuer,
		"sub":       req.User.ID,
		"aud":       req.Client.ClientID,
		"exp":       expires.Unix(),
		"iat":       now.Unix(),
		"auth_time": authTime.Unix(),
	}
	if req.Nonce != "" {
		claims["nonce"] = req.Nonce
	}

	withAccessToken := (req.GrantType == "authorization_code" && payload.AccessToken != "") ||
		req.ResponseType == "code id_token token" ||
		(req.ResponseType == "id_token token" && payload.AccessToken != "")
	if withAccessToken && payload.AccessToken != "" {
		claims["at_hash"] = tokenHash(payload.AccessToken, 16)
	}

	code := payload.Code
	if code == "" {
		code = req.Code
	}
	withCode := req.ResponseType == "code id_token" || req.ResponseType == "code id_token token"
	if withCode && code != "" {
		claims["c_hash"] = tokenHash(code, 32)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign ID token: %w", err)
	}

	// Machine tokens carry the claims but are not stored against a
	// resource owner.
	userID := req.User.ID
	if req.GrantType == "client_credentials" {
		userID = ""
	}

	row := &storage.IDToken{
		ID:        newTokenID(),
		Token:     signed,
		UserID:    userID,
		ClientID:  req.Client.ClientID,
		Scope:     listToScope(req.Scopes),
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if err := v.store.SaveIDToken(ctx, row); err != nil {
		return "", fmt.Errorf("failed to save ID token: %w", err)
	}
	req.IDToken = row

	v.auditor.LogIDTokenIssued(userID, req.Client.ClientID)
	if m := v.metrics(); m != nil {
		m.RecordIDTokenIssued(ctx, req.Client.ClientID)
	}
	return signed, nil
}

// ValidateIDToken reports whether token is an ID token this server
// signed and still knows about. The signature and registered claims are
// checked first; a token that verifies but has no stored row (revoked,
// cleaned up) fails soft. On success the row's client and user are
// bound to the request.
func (v *Validator) ValidateIDToken(ctx context.Context, token string, requiredScopes []string, req *Request) (bool, error) {
	if token == "" {
		return false, nil
	}
	if v.signingKey == nil {
		return false, fmt.Errorf("no ID token signing key configured")
	}

	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return &v.signingKey.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(v.config.ClockSkewGracePeriod),
	)
	if err != nil || !parsed.Valid {
		v.logger.Debug("ID token failed verification", "error", err)
		return false, nil
	}

	row, err := v.store.GetIDTokenByToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			v.logger.Debug("ID token verified but not on record")
			return false, nil
		}
		return false, fmt.Errorf("failed to load ID token: %w", err)
	}

	if row.ClientID != "" {
		client, err := v.store.GetClient(ctx, row.ClientID)
		if err != nil && !storage.IsNotFound(err) {
			return false, fmt.Errorf("failed to load ID token client: %w", err)
		}
		req.Client = client
	}
	if row.UserID != "" {
		user, err := v.store.GetUser(ctx, row.UserID)
		if err != nil && !storage.IsNotFound(err) {
			return false, fmt.Errorf("failed to load ID token user: %w", err)
		}
		req.User = user
	}

	req.Scopes = requiredScopes
	req.IDToken = row
	return true, nil
}

// ValidateUserMatch checks the id_token_hint of a new authorization
// request against the current session. There is no session notion at
// this layer, so every hint is accepted.
func (v *Validator) ValidateUserMatch(ctx context.Context, idTokenHint string, requiredScopes []string, claims map[string]any, req *Request) (bool, error) {
	return true, nil
}
