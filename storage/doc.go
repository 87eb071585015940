// Package storage provides the entity types and persistence contracts for the
// oauth-core decision logic.
//
// The storage package defines the credential store interfaces consumed by the
// validator package:
//   - ClientStore: registered OAuth client applications
//   - UserStore: resource owners referenced by grants and tokens
//   - GrantStore: one-time authorization codes
//   - TokenStore: access, refresh and ID token records
//
// The combined Store interface additionally exposes Atomic, which runs a
// function inside a single storage transaction, and an exclusive-lock read on
// access tokens. Both exist for one reason: refresh token exchanges must be
// serialized per token family (see the validator package).
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/postgres: PostgreSQL storage using pgx (row locks, transactions)
//   - storage/valkey: Valkey/Redis-compatible distributed storage
package storage
