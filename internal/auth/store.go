package auth

import (
	"context"
	"time"
)

// Store describes the external identity, credential, role and claim
// collaborators the auth core depends on. Implementations own the state;
// the core treats these strictly as capabilities.
type Store interface {
	Identities(ctx context.Context) IdentityStore
	Credentials(ctx context.Context) CredentialVerifier
	Roles(ctx context.Context) RoleStore
	Claims(ctx context.Context) ClaimStore
	Users(ctx context.Context) UserAdminStore
}

// IdentityStore resolves user identities.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (UserIdentity, error)
	FindByID(ctx context.Context, id string) (UserIdentity, error)
}

// CredentialVerifier checks passwords and reports lockout state. Lockout
// policy (failed-attempt counters, windows) lives behind this interface;
// the core only reads the outcome.
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, userID, password string) error
	IsLockedOut(ctx context.Context, userID string) (bool, error)
}

// RoleStore tracks named roles and per-user membership. RolesForUser
// returns canonical lower-case names in assignment order.
type RoleStore interface {
	RolesForUser(ctx context.Context, userID string) ([]string, error)
	AddToRole(ctx context.Context, userID, role string) error
	RemoveFromRole(ctx context.Context, userID, role string) error

	// EnsureRole creates the named role if it does not exist yet. Idempotent.
	EnsureRole(ctx context.Context, role string) error
}

// ClaimStore manages arbitrary typed key/value attributes per user.
type ClaimStore interface {
	ClaimsForUser(ctx context.Context, userID string) ([]ClaimRecord, error)
	AddClaim(ctx context.Context, userID string, claim ClaimRecord) error
	RemoveClaim(ctx context.Context, userID string, claim ClaimRecord) error
}

// UserAdminStore owns user lifecycle writes driven by admin provisioning.
// Password hashing happens above this interface; stores only ever see the
// hash.
type UserAdminStore interface {
	CreateUser(ctx context.Context, username, passwordHash, email string) (UserIdentity, error)

	// ListUsers returns identities ordered by canonical username.
	ListUsers(ctx context.Context, limit, offset int) ([]UserIdentity, error)

	DeleteUser(ctx context.Context, userID string) error

	// SetLockout disables the user until the given time; nil clears the
	// lockout.
	SetLockout(ctx context.Context, userID string, until *time.Time) error

	// FindUserIDByClaim resolves the user holding the exact claim, or
	// ErrNotFound when no user does.
	FindUserIDByClaim(ctx context.Context, claim ClaimRecord) (string, error)
}
