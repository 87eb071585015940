// Package postgres implements the storage interfaces on PostgreSQL
// using pgx. Atomic runs the callback inside a database transaction,
// and GetAccessTokenForUpdate takes a SELECT ... FOR UPDATE row lock,
// which is what serializes concurrent refresh exchanges of the same
// token when rotation is disabled.
package postgres
