// Package validator implements the decision core of an OAuth2 / OpenID
// Connect authorization server.
//
// The Validator answers the questions a protocol engine asks while it
// processes authorization and token requests: is this client who it says
// it is, may it use this grant type, is this authorization code still
// good, is this bearer token valid for these scopes. It owns no HTTP
// surface and no wire parsing. The engine extracts credentials and
// parameters from the request, places them on a Request value, and calls
// the Validator's methods in the order the flow requires.
//
// Validation outcomes follow a strict taxonomy:
//
//   - A normal negative answer (unknown client, expired code, scope not
//     allowed) is (false, nil). The engine turns these into protocol
//     error responses.
//   - A call that makes no sense under the calling contract (an unknown
//     grant type, a token payload with no scope) returns a *ContractError.
//     These indicate an engine bug, not a bad request.
//   - A failing dependency (storage, introspection endpoint) returns the
//     wrapped error, or fails closed where the contract requires a
//     boolean answer.
//
// Persistence goes through the storage.Store interface. Multi-step
// writes (refresh token rotation, bearer token persistence) run inside
// store.Atomic so concurrent refreshes of the same token settle on one
// winner.
package validator
