// Package pg implements the auth capability stores over PostgreSQL using
// database/sql with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store wraps a SQL connection pool.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to the given DSN with pool defaults tuned for the auth
// workload.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

// Identities implements auth.Store.
func (s *Store) Identities(context.Context) auth.IdentityStore { return s }

// Credentials implements auth.Store.
func (s *Store) Credentials(context.Context) auth.CredentialVerifier { return s }

// Roles implements auth.Store.
func (s *Store) Roles(context.Context) auth.RoleStore { return s }

// Claims implements auth.Store.
func (s *Store) Claims(context.Context) auth.ClaimStore { return s }

// Users implements auth.Store.
func (s *Store) Users(context.Context) auth.UserAdminStore { return s }

// CreateUser inserts a user with a pre-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, email string) (auth.UserIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return auth.UserIdentity{}, fmt.Errorf("%w: username and password hash are required", auth.ErrInvalidInput)
	}
	id := ids.New()
	var identity auth.UserIdentity
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash)
		values ($1, $2, $3, $4)
		returning id, username, coalesce(email, '')
	`, id, username, nullable(email), passwordHash).Scan(&identity.ID, &identity.Username, &identity.Email)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.UserIdentity{}, auth.ErrConflict
		}
		return auth.UserIdentity{}, err
	}
	return identity, nil
}

// FindByUsername implements auth.IdentityStore.
func (s *Store) FindByUsername(ctx context.Context, username string) (auth.UserIdentity, error) {
	var identity auth.UserIdentity
	err := s.db.QueryRowContext(ctx, `
		select id, username, coalesce(email, '')
		from users
		where lower(username) = lower($1)
	`, strings.TrimSpace(username)).Scan(&identity.ID, &identity.Username, &identity.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserIdentity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.UserIdentity{}, err
	}
	return identity, nil
}

// FindByID implements auth.IdentityStore.
func (s *Store) FindByID(ctx context.Context, id string) (auth.UserIdentity, error) {
	var identity auth.UserIdentity
	err := s.db.QueryRowContext(ctx, `
		select id, username, coalesce(email, '')
		from users
		where id = $1
	`, id).Scan(&identity.ID, &identity.Username, &identity.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserIdentity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.UserIdentity{}, err
	}
	return identity, nil
}

// VerifyPassword implements auth.CredentialVerifier.
func (s *Store) VerifyPassword(ctx context.Context, userID, password string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		select password_hash from users where id = $1
	`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(hash, password); err != nil {
		return auth.ErrInvalidCredentials
	}
	return nil
}

// IsLockedOut implements auth.CredentialVerifier.
func (s *Store) IsLockedOut(ctx context.Context, userID string) (bool, error) {
	var lockedOut bool
	err := s.db.QueryRowContext(ctx, `
		select lockout_until is not null and lockout_until > now()
		from users
		where id = $1
	`, userID).Scan(&lockedOut)
	if errors.Is(err, sql.ErrNoRows) {
		return false, auth.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return lockedOut, nil
}

// SetLockout sets or clears the lockout window for a user.
func (s *Store) SetLockout(ctx context.Context, userID string, until *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set lockout_until = $2, updated_at = now() where id = $1
	`, userID, until)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// RolesForUser implements auth.RoleStore; assignment order is preserved.
func (s *Store) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by ur.assigned_at, r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// AddToRole implements auth.RoleStore. An unknown role or user is
// ErrNotFound; repeated assignment is a no-op.
func (s *Store) AddToRole(ctx context.Context, userID, role string) error {
	var roleID string
	err := s.db.QueryRowContext(ctx, `
		select id from roles where name = lower($1)
	`, role).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: role %q", auth.ErrNotFound, role)
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, userID, roleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

// RemoveFromRole implements auth.RoleStore.
func (s *Store) RemoveFromRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1
		  and role_id = (select id from roles where name = lower($2))
	`, userID, role)
	return err
}

// EnsureRole implements auth.RoleStore; creation is idempotent.
func (s *Store) EnsureRole(ctx context.Context, role string) error {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return auth.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, name)
		values ($1, $2)
		on conflict (name) do nothing
	`, ids.New(), role)
	return err
}

// ClaimsForUser implements auth.ClaimStore; insertion order is preserved.
func (s *Store) ClaimsForUser(ctx context.Context, userID string) ([]auth.ClaimRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select claim_type, claim_value
		from user_claims
		where user_id = $1
		order by added_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []auth.ClaimRecord
	for rows.Next() {
		var c auth.ClaimRecord
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// AddClaim implements auth.ClaimStore.
func (s *Store) AddClaim(ctx context.Context, userID string, claim auth.ClaimRecord) error {
	if claim.Type == "" {
		return auth.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_claims (user_id, claim_type, claim_value)
		values ($1, $2, $3)
	`, userID, claim.Type, claim.Value)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

// RemoveClaim implements auth.ClaimStore.
func (s *Store) RemoveClaim(ctx context.Context, userID string, claim auth.ClaimRecord) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_claims
		where user_id = $1 and claim_type = $2 and claim_value = $3
	`, userID, claim.Type, claim.Value)
	return err
}

// ListUsers implements auth.UserAdminStore; pages are ordered by canonical
// username.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]auth.UserIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, username, coalesce(email, '')
		from users
		order by lower(username)
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []auth.UserIdentity
	for rows.Next() {
		var identity auth.UserIdentity
		if err := rows.Scan(&identity.ID, &identity.Username, &identity.Email); err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// DeleteUser implements auth.UserAdminStore. Role memberships and claims
// cascade with the row.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from users where id = $1
	`, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// FindUserIDByClaim implements auth.UserAdminStore.
func (s *Store) FindUserIDByClaim(ctx context.Context, claim auth.ClaimRecord) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		select user_id
		from user_claims
		where claim_type = $1 and claim_value = $2
	`, claim.Type, claim.Value).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	if err == nil {
		return nil, false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
