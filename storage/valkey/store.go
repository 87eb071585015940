// Package valkey implements the storage interfaces on Valkey. Records
// are JSON values under a configurable key prefix; token strings are
// additionally indexed so lookups by token value stay O(1). Atomic is
// backed by a best-effort distributed lock (SET NX with a TTL), which
// serializes refresh exchanges across processes sharing the store.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// tokenRetention keeps expired token records around after their
	// expiry so the refresh and introspection paths can still read them.
	tokenRetention = 30 * 24 * time.Hour

	// grantExpiryBuffer keeps authorization codes readable slightly past
	// their expiry, covering the validator's clock skew grace period.
	grantExpiryBuffer = time.Minute

	// atomicLockTTL bounds how long a crashed holder can block others
	atomicLockTTL = 5 * time.Second

	// atomicLockRetry is the polling interval while waiting for the lock
	atomicLockRetry = 20 * time.Millisecond
)

// releaseLockScript deletes the lock only when it is still ours.
const releaseLockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	// inLock marks the store Atomic hands to its callback, so nested
	// Atomic calls reuse the held lock.
	inLock bool

	// encryptor provides optional record encryption at rest
	// Access must be synchronized via encryptorMu
	encryptor   *security.Encryptor
	encryptorMu sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetEncryptor enables encryption at rest for stored records.
// Pass nil to disable. Safe to call concurrently.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptorMu.Lock()
	defer s.encryptorMu.Unlock()
	s.encryptor = enc
}

func (s *Store) getEncryptor() *security.Encryptor {
	s.encryptorMu.RLock()
	defer s.encryptorMu.RUnlock()
	return s.encryptor
}

// Atomic serializes fn against every other Atomic caller sharing this
// prefix, via a SET NX lock. The lock carries a TTL so a crashed holder
// cannot block others forever; fn must finish well within it.
func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	if s.inLock {
		return fn(s)
	}

	lockKey := s.prefix + "lock:atomic"
	lockVal := uuid.NewString()

	for {
		err := s.client.Do(ctx,
			s.client.B().Set().Key(lockKey).Value(lockVal).Nx().Ex(atomicLockTTL).Build(),
		).Error()
		if err == nil {
			break
		}
		if !isNilError(err) {
			return fmt.Errorf("failed to acquire atomic lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(atomicLockRetry):
		}
	}

	defer func() {
		err := s.client.Do(ctx,
			s.client.B().Eval().Script(releaseLockScript).Numkeys(1).Key(lockKey).Arg(lockVal).Build(),
		).Error()
		if err != nil {
			s.logger.Warn("failed to release atomic lock", "error", err)
		}
	}()

	locked := &Store{
		client: s.client,
		prefix: s.prefix,
		logger: s.logger,
		inLock: true,
	}
	locked.SetEncryptor(s.getEncryptor())

	return fn(locked)
}

// ============================================================
// Key helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) userKey(id string) string {
	return s.prefix + "user:" + id
}

func (s *Store) usernameKey(username string) string {
	return s.prefix + "user:name:" + username
}

func (s *Store) grantKey(code string) string {
	return s.prefix + "grant:" + code
}

func (s *Store) accessTokenKey(id string) string {
	return s.prefix + "at:" + id
}

func (s *Store) accessTokenIndexKey(token string) string {
	return s.prefix + "at:token:" + token
}

func (s *Store) refreshTokenKey(id string) string {
	return s.prefix + "rt:" + id
}

func (s *Store) refreshTokenIndexKey(token string) string {
	return s.prefix + "rt:token:" + token
}

func (s *Store) idTokenKey(id string) string {
	return s.prefix + "idt:" + id
}

func (s *Store) idTokenIndexKey(token string) string {
	return s.prefix + "idt:token:" + token
}

// ============================================================
// Low-level record helpers
// ============================================================

// setRecord stores an encoded record, encrypting it when an encryptor is
// installed. A zero ttl means the key does not expire.
func (s *Store) setRecord(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	value := string(data)
	if enc := s.getEncryptor(); enc.IsEnabled() {
		encrypted, err := enc.Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt record: %w", err)
		}
		value = encrypted
	}

	builder := s.client.B().Set().Key(key).Value(value)
	var cmd valkeygo.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set record: %w", err)
	}
	return nil
}

// getRecord fetches and, when needed, decrypts a record.
// Missing keys map to storage.ErrNotFound.
func (s *Store) getRecord(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if enc := s.getEncryptor(); enc.IsEnabled() {
		decrypted, err := enc.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt record: %w", err)
		}
		data = decrypted
	}
	return []byte(data), nil
}

// setIndex stores a plain token-to-id index entry.
func (s *Store) setIndex(ctx context.Context, key, id string, ttl time.Duration) error {
	builder := s.client.B().Set().Key(key).Value(id)
	var cmd valkeygo.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set index: %w", err)
	}
	return nil
}

// getIndex resolves a token-to-id index entry.
func (s *Store) getIndex(ctx context.Context, key string) (string, error) {
	id, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to get index: %w", err)
	}
	return id, nil
}

// deleteKeys removes keys and reports whether any existed.
func (s *Store) deleteKeys(ctx context.Context, keys ...string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete keys: %w", err)
	}
	return n > 0, nil
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// retentionTTL is the key TTL for token records: their useful lifetime
// plus the retention window for post-expiry reads.
func retentionTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + tokenRetention
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}
