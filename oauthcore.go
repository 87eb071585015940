package oauthcore

import (
	"log/slog"

	"github.com/giantswarm/oauth-core/scopes"
	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/validator"
)

// Core re-exports so simple integrations only import the root package.
type (
	// Validator is the decision core a protocol engine drives.
	Validator = validator.Validator

	// Config holds validator configuration.
	Config = validator.Config

	// Request carries one flow's inputs and accumulated bindings.
	Request = validator.Request

	// BearerToken is the token payload handed to SaveBearerToken.
	BearerToken = validator.BearerToken

	// ContractError reports engine misuse of the validator.
	ContractError = validator.ContractError

	// Store is the credential store contract.
	Store = storage.Store

	// Client is a registered OAuth client application.
	Client = storage.Client

	// User is a resource owner.
	User = storage.User
)

// New creates a Validator. It is a convenience wrapper around
// validator.New for callers that only need the root package.
func New(store storage.Store, catalog scopes.Catalog, config Config, logger *slog.Logger) (*Validator, error) {
	return validator.New(store, catalog, config, logger)
}

// IsContractError reports whether err marks engine misuse rather than an
// invalid credential or a dependency failure.
func IsContractError(err error) bool {
	return validator.IsContractError(err)
}
