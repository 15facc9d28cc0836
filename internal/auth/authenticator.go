package auth

import (
	"context"
	"errors"
	"strings"
)

// CredentialAuthenticator verifies username/password pairs against the
// external identity and credential stores. It reads lockout state but does
// not implement lockout policy.
type CredentialAuthenticator struct {
	store Store
}

// NewCredentialAuthenticator constructs an authenticator over the given store.
func NewCredentialAuthenticator(store Store) (*CredentialAuthenticator, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &CredentialAuthenticator{store: store}, nil
}

// Authenticate resolves the username and checks password and lockout state.
// An unknown username and a wrong password both return ErrInvalidCredentials;
// a locked-out account returns ErrAccountDisabled.
func (a *CredentialAuthenticator) Authenticate(ctx context.Context, username, password string) (UserIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return UserIdentity{}, ErrInvalidCredentials
	}

	identity, err := a.store.Identities(ctx).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserIdentity{}, ErrInvalidCredentials
		}
		return UserIdentity{}, err
	}

	creds := a.store.Credentials(ctx)
	locked, err := creds.IsLockedOut(ctx, identity.ID)
	if err != nil {
		return UserIdentity{}, err
	}
	if locked {
		return UserIdentity{}, ErrAccountDisabled
	}

	if err := creds.VerifyPassword(ctx, identity.ID, password); err != nil {
		return UserIdentity{}, ErrInvalidCredentials
	}
	return identity, nil
}
