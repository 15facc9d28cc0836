// Package memory provides a concurrency-safe in-process implementation of
// the auth capability stores, used in development mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/ids"
)

type userRecord struct {
	identity     auth.UserIdentity
	passwordHash string
	lockoutUntil time.Time
	roles        []string
	claims       []auth.ClaimRecord
}

// Store keeps users, roles and claims in process memory.
type Store struct {
	mu     sync.RWMutex
	users  map[string]*userRecord // keyed by user id
	byName map[string]string      // username -> user id
	roles  map[string]struct{}    // known role names
	now    func() time.Time
}

var _ auth.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:  make(map[string]*userRecord),
		byName: make(map[string]string),
		roles:  make(map[string]struct{}),
		now:    time.Now,
	}
}

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

// CreateUser implements auth.UserAdminStore. The password arrives already
// hashed.
func (s *Store) CreateUser(_ context.Context, username, passwordHash, email string) (auth.UserIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return auth.UserIdentity{}, fmt.Errorf("%w: username is required", auth.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := s.byName[key]; exists {
		return auth.UserIdentity{}, auth.ErrConflict
	}
	identity := auth.UserIdentity{ID: ids.New(), Username: username, Email: email}
	s.users[identity.ID] = &userRecord{identity: identity, passwordHash: passwordHash}
	s.byName[key] = identity.ID
	return identity, nil
}

// ListUsers implements auth.UserAdminStore; identities come back ordered by
// canonical username.
func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]auth.UserIdentity, error) {
	s.mu.RLock()
	all := make([]auth.UserIdentity, 0, len(s.users))
	for _, rec := range s.users {
		all = append(all, rec.identity)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Username) < strings.ToLower(all[j].Username)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// DeleteUser implements auth.UserAdminStore. Role memberships and claims go
// with the record.
func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.users, userID)
	delete(s.byName, strings.ToLower(rec.identity.Username))
	return nil
}

// SetLockout implements auth.UserAdminStore. A nil until clears the lockout.
func (s *Store) SetLockout(_ context.Context, userID string, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	if until == nil {
		rec.lockoutUntil = time.Time{}
	} else {
		rec.lockoutUntil = *until
	}
	return nil
}

// FindUserIDByClaim implements auth.UserAdminStore.
func (s *Store) FindUserIDByClaim(_ context.Context, claim auth.ClaimRecord) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, rec := range s.users {
		for _, existing := range rec.claims {
			if existing == claim {
				return id, nil
			}
		}
	}
	return "", auth.ErrNotFound
}

// FindByUsername implements auth.IdentityStore. Lookup is case-insensitive.
func (s *Store) FindByUsername(_ context.Context, username string) (auth.UserIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return auth.UserIdentity{}, auth.ErrNotFound
	}
	return s.users[id].identity, nil
}

// FindByID implements auth.IdentityStore.
func (s *Store) FindByID(_ context.Context, id string) (auth.UserIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return auth.UserIdentity{}, auth.ErrNotFound
	}
	return rec.identity, nil
}

// VerifyPassword implements auth.CredentialVerifier.
func (s *Store) VerifyPassword(_ context.Context, userID, password string) error {
	s.mu.RLock()
	rec, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return auth.ErrNotFound
	}
	if err := auth.ComparePassword(rec.passwordHash, password); err != nil {
		return auth.ErrInvalidCredentials
	}
	return nil
}

// IsLockedOut implements auth.CredentialVerifier.
func (s *Store) IsLockedOut(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return false, auth.ErrNotFound
	}
	return !rec.lockoutUntil.IsZero() && rec.lockoutUntil.After(s.now()), nil
}

// RolesForUser implements auth.RoleStore; names come back in assignment order.
func (s *Store) RolesForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := make([]string, len(rec.roles))
	copy(out, rec.roles)
	return out, nil
}

// AddToRole implements auth.RoleStore.
func (s *Store) AddToRole(_ context.Context, userID, role string) error {
	role = canonicalRole(role)
	if role == "" {
		return auth.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, known := s.roles[role]; !known {
		return fmt.Errorf("%w: role %q", auth.ErrNotFound, role)
	}
	for _, existing := range rec.roles {
		if existing == role {
			return nil
		}
	}
	rec.roles = append(rec.roles, role)
	return nil
}

// RemoveFromRole implements auth.RoleStore.
func (s *Store) RemoveFromRole(_ context.Context, userID, role string) error {
	role = canonicalRole(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	for i, existing := range rec.roles {
		if existing == role {
			rec.roles = append(rec.roles[:i], rec.roles[i+1:]...)
			return nil
		}
	}
	return nil
}

// EnsureRole implements auth.RoleStore.
func (s *Store) EnsureRole(_ context.Context, role string) error {
	role = canonicalRole(role)
	if role == "" {
		return auth.ErrInvalidInput
	}
	s.mu.Lock()
	s.roles[role] = struct{}{}
	s.mu.Unlock()
	return nil
}

// ClaimsForUser implements auth.ClaimStore.
func (s *Store) ClaimsForUser(_ context.Context, userID string) ([]auth.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := make([]auth.ClaimRecord, len(rec.claims))
	copy(out, rec.claims)
	return out, nil
}

// AddClaim implements auth.ClaimStore.
func (s *Store) AddClaim(_ context.Context, userID string, claim auth.ClaimRecord) error {
	if claim.Type == "" {
		return auth.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	rec.claims = append(rec.claims, claim)
	return nil
}

// RemoveClaim implements auth.ClaimStore.
func (s *Store) RemoveClaim(_ context.Context, userID string, claim auth.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	for i, existing := range rec.claims {
		if existing == claim {
			rec.claims = append(rec.claims[:i], rec.claims[i+1:]...)
			return nil
		}
	}
	return nil
}

func canonicalRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}

// Seed populates the development users: two password users, an admin and a
// dispatcher with an email claim.
func (s *Store) Seed(ctx context.Context) error {
	type seedUser struct {
		username string
		password string
		email    string
		roles    []string
		claims   []auth.ClaimRecord
	}
	seeds := []seedUser{
		{username: "alice", password: "Pass123!", email: "alice@bellwood.example", roles: []string{"booker"}},
		{username: "bob", password: "Pass123!", email: "bob@bellwood.example", roles: []string{"driver"},
			claims: []auth.ClaimRecord{{Type: auth.ClaimUID, Value: "drv-0001"}}},
		{username: "diana", password: "password", email: "diana.dispatcher@bellwood.example", roles: []string{"dispatcher"},
			claims: []auth.ClaimRecord{{Type: auth.ClaimEmail, Value: "diana.dispatcher@bellwood.example"}}},
		{username: "root", password: "ChangeMe123!", email: "admin@bellwood.example", roles: []string{"admin"}},
	}
	for _, seed := range seeds {
		hash, err := auth.HashPassword(seed.password)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.username, err)
		}
		identity, err := s.CreateUser(ctx, seed.username, hash, seed.email)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.username, err)
		}
		for _, role := range seed.roles {
			if err := s.EnsureRole(ctx, role); err != nil {
				return err
			}
			if err := s.AddToRole(ctx, identity.ID, role); err != nil {
				return err
			}
		}
		for _, claim := range seed.claims {
			if err := s.AddClaim(ctx, identity.ID, claim); err != nil {
				return err
			}
		}
	}
	return nil
}
