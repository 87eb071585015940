package validator

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/giantswarm/oauth-core/storage"
)

// extractBasicAuth returns the base64 segment of an HTTP Basic
// Authorization header, or "" when the header is absent or uses another
// scheme.
func extractBasicAuth(req *Request) string {
	if req.Headers == nil {
		return ""
	}
	auth := req.Headers.Get("Authorization")
	if auth == "" {
		return ""
	}
	scheme, rest, found := strings.Cut(auth, " ")
	if !found || scheme != "Basic" {
		return ""
	}
	return rest
}

// secretsEqual compares two client secrets in constant time.
func secretsEqual(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// ClientAuthenticationRequired reports whether the current token request
// must authenticate its client. Requests that carry credentials (Basic
// header, or client_id plus client_secret in the body) always must.
// Without credentials the answer follows the client record: confidential
// clients must authenticate, public ones need not. Unknown clients must,
// so they fail at the authentication step rather than slipping through.
func (v *Validator) ClientAuthenticationRequired(ctx context.Context, req *Request) (bool, error) {
	if extractBasicAuth(req) != "" {
		return true, nil
	}
	if req.ClientID != "" && req.ClientSecret != "" {
		return true, nil
	}

	client, err := v.loadClient(ctx, req.ClientID)
	if err != nil {
		return false, err
	}
	if client != nil {
		req.Client = client
		return client.ClientType == storage.ClientTypeConfidential, nil
	}
	return true, nil
}

// AuthenticateClient authenticates the client of a token request. HTTP
// Basic credentials are tried first; when they are absent or wrong, the
// request-body credentials are tried. On success the client record is
// bound to req.Client.
func (v *Validator) AuthenticateClient(ctx context.Context, req *Request) (bool, error) {
	ok, err := v.authenticateBasic(ctx, req)
	if err != nil {
		return false, err
	}
	if ok {
		if m := v.metrics(); m != nil {
			m.RecordClientAuth(ctx, "basic", true)
		}
		return true, nil
	}

	ok, err = v.authenticateRequestBody(ctx, req)
	if err != nil {
		return false, err
	}
	if m := v.metrics(); m != nil {
		m.RecordClientAuth(ctx, "body", ok)
	}
	return ok, nil
}

// AuthenticateClientID validates a public client that presented no
// credentials. It succeeds only for a known, enabled, non-confidential
// client, which it binds to req.Client.
func (v *Validator) AuthenticateClientID(ctx context.Context, clientID string, req *Request) (bool, error) {
	client := req.Client
	if client == nil {
		var err error
		client, err = v.loadClient(ctx, clientID)
		if err != nil {
			return false, err
		}
	}
	if client == nil {
		v.auditor.LogAuthFailure(clientID, "unknown client")
		return false, nil
	}
	req.Client = client
	if client.ClientType == storage.ClientTypeConfidential {
		v.logger.Debug("confidential client must authenticate", "client_id", clientID)
		v.auditor.LogAuthFailure(clientID, "confidential client without credentials")
		return false, nil
	}
	return true, nil
}

// authenticateBasic authenticates via the Authorization header. Every
// malformed header (bad base64, no colon, invalid encoding) is a soft
// failure so the body credentials still get their turn.
func (v *Validator) authenticateBasic(ctx context.Context, req *Request) (bool, error) {
	segment := extractBasicAuth(req)
	if segment == "" {
		return false, nil
	}

	raw, err := base64.StdEncoding.DecodeString(segment)
	if err != nil {
		v.logger.Debug("failed basic auth, credentials are not base64", "error", err)
		return false, nil
	}
	if !utf8.Valid(raw) {
		v.logger.Debug("failed basic auth, credentials are not valid UTF-8")
		return false, nil
	}

	id, secret, found := strings.Cut(string(raw), ":")
	if !found {
		v.logger.Debug("failed basic auth, no colon in credentials")
		return false, nil
	}

	// Credentials are form-urlencoded per RFC 6749 section 2.3.1.
	clientID, err := url.QueryUnescape(id)
	if err != nil {
		v.logger.Debug("failed basic auth, client id is not urlencoded", "error", err)
		return false, nil
	}
	clientSecret, err := url.QueryUnescape(secret)
	if err != nil {
		v.logger.Debug("failed basic auth, client secret is not urlencoded", "error", err)
		return false, nil
	}

	return v.checkClientSecret(ctx, req, clientID, clientSecret)
}

// authenticateRequestBody authenticates via client_id and client_secret
// form parameters. The engine may extract them onto the Request, or leave
// them in the decoded body.
func (v *Validator) authenticateRequestBody(ctx context.Context, req *Request) (bool, error) {
	clientID, clientSecret := req.ClientID, req.ClientSecret
	if clientID == "" && req.Body != nil {
		clientID = req.Body.Get("client_id")
		clientSecret = req.Body.Get("client_secret")
	}
	if clientID == "" {
		v.logger.Debug("failed body auth, client_id missing")
		return false, nil
	}
	return v.checkClientSecret(ctx, req, clientID, clientSecret)
}

// checkClientSecret verifies clientID's secret and binds the client. A
// client already bound to the request is reused; presenting credentials
// for a different client than the bound one fails, so credentials cannot
// switch the request to another client mid-flow.
func (v *Validator) checkClientSecret(ctx context.Context, req *Request, clientID, clientSecret string) (bool, error) {
	client := req.Client
	if client != nil && client.ClientID != clientID {
		v.logger.Debug("failed client secret check, request is bound to another client",
			"client_id", clientID, "bound_client_id", client.ClientID)
		v.auditor.LogAuthFailure(clientID, "client id mismatch")
		return false, nil
	}
	if client == nil {
		var err error
		client, err = v.loadClient(ctx, clientID)
		if err != nil {
			return false, err
		}
	}
	if client == nil {
		v.auditor.LogAuthFailure(clientID, "unknown client")
		return false, nil
	}
	if !secretsEqual(client.ClientSecret, clientSecret) {
		v.logger.Debug("failed client secret check", "client_id", clientID)
		v.auditor.LogAuthFailure(clientID, "secret mismatch")
		return false, nil
	}
	req.Client = client
	return true, nil
}
