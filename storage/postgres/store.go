package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giantswarm/oauth-core/storage"
)

// db is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same query methods serve both the pool-backed store and the
// transactional store Atomic hands to its callback.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Store on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	db     db
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to PostgreSQL and verifies the connection. The caller
// owns the store and must Close it; run Migrate before first use.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Store{pool: pool, db: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Atomic runs fn inside a database transaction. The store passed to fn
// shares the transaction; its GetAccessTokenForUpdate takes real row
// locks. Nested calls reuse the enclosing transaction.
func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	if s.pool == nil {
		// Already inside a transaction.
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &Store{db: tx, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notFound maps pgx.ErrNoRows onto the storage sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// ============================================================================
// Client operations
// ============================================================================

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	row := s.db.QueryRow(ctx,
		`SELECT client_id, client_secret, client_type, grant_types, redirect_uris, disabled, created_at
		 FROM oauth_clients WHERE client_id = $1`, clientID)

	var c storage.Client
	err := row.Scan(&c.ClientID, &c.ClientSecret, &c.ClientType, &c.GrantTypes, &c.RedirectURIs, &c.Disabled, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_clients (client_id, client_secret, client_type, grant_types, redirect_uris, disabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		client.ClientID, client.ClientSecret, client.ClientType, client.GrantTypes, client.RedirectURIs, client.Disabled, createdAt(client.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (s *Store) UpdateClient(ctx context.Context, client *storage.Client) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE oauth_clients SET client_secret = $2, client_type = $3, grant_types = $4, redirect_uris = $5, disabled = $6
		 WHERE client_id = $1`,
		client.ClientID, client.ClientSecret, client.ClientType, client.GrantTypes, client.RedirectURIs, client.Disabled)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_clients WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================================
// User operations
// ============================================================================

func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		`SELECT id, username, last_login, created_at FROM oauth_users WHERE id = $1`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		`SELECT id, username, last_login, created_at FROM oauth_users WHERE username = $1`, username))
}

func (s *Store) scanUser(row pgx.Row) (*storage.User, error) {
	var u storage.User
	var lastLogin *time.Time
	if err := row.Scan(&u.ID, &u.Username, &lastLogin, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	var lastLogin *time.Time
	if !user.LastLogin.IsZero() {
		lastLogin = &user.LastLogin
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_users (id, username, last_login, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, last_login = EXCLUDED.last_login`,
		user.ID, user.Username, lastLogin, createdAt(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// ============================================================================
// Grant operations
// ============================================================================

func (s *Store) GetGrant(ctx context.Context, code string) (*storage.Grant, error) {
	row := s.db.QueryRow(ctx,
		`SELECT code, client_id, user_id, scope, redirect_uri, expires_at, created_at
		 FROM oauth_grants WHERE code = $1`, code)

	var g storage.Grant
	err := row.Scan(&g.Code, &g.ClientID, &g.UserID, &g.Scope, &g.RedirectURI, &g.ExpiresAt, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_grants (code, client_id, user_id, scope, redirect_uri, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		grant.Code, grant.ClientID, grant.UserID, grant.Scope, grant.RedirectURI, grant.ExpiresAt, createdAt(grant.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

func (s *Store) DeleteGrant(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_grants WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteExpiredGrants removes authorization codes past their expiry.
// Meant for periodic cleanup jobs.
func (s *Store) DeleteExpiredGrants(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_grants WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ============================================================================
// Access token operations
// ============================================================================

const accessTokenColumns = `id, token, user_id, client_id, scope, expires_at, created_at`

func (s *Store) GetAccessToken(ctx context.Context, id string) (*storage.AccessToken, error) {
	return s.scanAccessToken(s.db.QueryRow(ctx,
		`SELECT `+accessTokenColumns+` FROM oauth_access_tokens WHERE id = $1`, id))
}

func (s *Store) GetAccessTokenByToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	return s.scanAccessToken(s.db.QueryRow(ctx,
		`SELECT `+accessTokenColumns+` FROM oauth_access_tokens WHERE token = $1`, token))
}

// GetAccessTokenForUpdate locks the row until the enclosing transaction
// ends. Outside a transaction the lock is released immediately, so this
// is only useful from within Atomic.
func (s *Store) GetAccessTokenForUpdate(ctx context.Context, id string) (*storage.AccessToken, error) {
	return s.scanAccessToken(s.db.QueryRow(ctx,
		`SELECT `+accessTokenColumns+` FROM oauth_access_tokens WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) scanAccessToken(row pgx.Row) (*storage.AccessToken, error) {
	var t storage.AccessToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ClientID, &t.Scope, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_access_tokens (`+accessTokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.Token, token.UserID, token.ClientID, token.Scope, token.ExpiresAt, createdAt(token.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *Store) UpdateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE oauth_access_tokens SET token = $2, user_id = $3, client_id = $4, scope = $5, expires_at = $6
		 WHERE id = $1`,
		token.ID, token.Token, token.UserID, token.ClientID, token.Scope, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_access_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================================
// Refresh token operations
// ============================================================================

func (s *Store) GetRefreshTokenByToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, token, user_id, client_id, access_token_id, created_at
		 FROM oauth_refresh_tokens WHERE token = $1`, token)

	var t storage.RefreshToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ClientID, &t.AccessTokenID, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_refresh_tokens (id, token, user_id, client_id, access_token_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.Token, token.UserID, token.ClientID, token.AccessTokenID, createdAt(token.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (s *Store) UpdateRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE oauth_refresh_tokens SET token = $2, user_id = $3, client_id = $4, access_token_id = $5
		 WHERE id = $1`,
		token.ID, token.Token, token.UserID, token.ClientID, token.AccessTokenID)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================================
// ID token operations
// ============================================================================

func (s *Store) GetIDTokenByToken(ctx context.Context, token string) (*storage.IDToken, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, token, user_id, client_id, scope, expires_at, created_at
		 FROM oauth_id_tokens WHERE token = $1`, token)

	var t storage.IDToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ClientID, &t.Scope, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) SaveIDToken(ctx context.Context, token *storage.IDToken) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_id_tokens (id, token, user_id, client_id, scope, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.Token, token.UserID, token.ClientID, token.Scope, token.ExpiresAt, createdAt(token.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save ID token: %w", err)
	}
	return nil
}

func (s *Store) DeleteIDToken(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_id_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ID token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// createdAt defaults a zero timestamp to now so callers may leave it unset.
func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
