// Package memory provides an in-memory implementation of the oauth-core
// storage contracts.
//
// This package implements the storage.Store interface using Go's built-in
// maps with mutex protection for thread safety. It is suitable for
// development, testing, and single-instance deployments where persistence is
// not required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Atomic blocks serialized by a dedicated transaction mutex, which is
//     what the validator's refresh-exchange locking requires
//   - Optional janitor goroutine that removes expired authorization codes
//
// For deployments requiring persistence or multiple instances, use the
// storage/postgres or storage/valkey packages instead.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	v, _ := validator.New(store, catalog, config, logger)
package memory
