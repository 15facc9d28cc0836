package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// fakeStore is a configurable in-test implementation of Store that counts
// role writes so provisioning idempotence can be asserted.
type fakeStore struct {
	byUsername map[string]UserIdentity
	byID       map[string]UserIdentity
	passwords  map[string]string
	locked     map[string]bool
	roles      map[string][]string
	knownRoles map[string]struct{}
	claims     map[string][]ClaimRecord

	addRoleCalls    int
	removeRoleCalls int
	ensureRoleCalls int

	failAddRole    error
	failRemoveRole error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byUsername: make(map[string]UserIdentity),
		byID:       make(map[string]UserIdentity),
		passwords:  make(map[string]string),
		locked:     make(map[string]bool),
		roles:      make(map[string][]string),
		knownRoles: make(map[string]struct{}),
		claims:     make(map[string][]ClaimRecord),
	}
}

func (f *fakeStore) addUser(id, username, email, password string, roles []string, claims []ClaimRecord) UserIdentity {
	identity := UserIdentity{ID: id, Username: username, Email: email}
	f.byUsername[strings.ToLower(username)] = identity
	f.byID[id] = identity
	f.passwords[id] = password
	f.roles[id] = roles
	for _, role := range roles {
		f.knownRoles[role] = struct{}{}
	}
	f.claims[id] = claims
	return identity
}

func (f *fakeStore) Identities(context.Context) IdentityStore       { return f }
func (f *fakeStore) Credentials(context.Context) CredentialVerifier { return f }
func (f *fakeStore) Roles(context.Context) RoleStore                { return f }
func (f *fakeStore) Claims(context.Context) ClaimStore              { return f }
func (f *fakeStore) Users(context.Context) UserAdminStore           { return f }

func (f *fakeStore) FindByUsername(_ context.Context, username string) (UserIdentity, error) {
	identity, ok := f.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return UserIdentity{}, ErrNotFound
	}
	return identity, nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (UserIdentity, error) {
	identity, ok := f.byID[id]
	if !ok {
		return UserIdentity{}, ErrNotFound
	}
	return identity, nil
}

func (f *fakeStore) VerifyPassword(_ context.Context, userID, password string) error {
	stored, ok := f.passwords[userID]
	if !ok {
		return ErrNotFound
	}
	if stored != password {
		return ErrInvalidCredentials
	}
	return nil
}

func (f *fakeStore) IsLockedOut(_ context.Context, userID string) (bool, error) {
	if _, ok := f.byID[userID]; !ok {
		return false, ErrNotFound
	}
	return f.locked[userID], nil
}

func (f *fakeStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	if _, ok := f.byID[userID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]string, len(f.roles[userID]))
	copy(out, f.roles[userID])
	return out, nil
}

func (f *fakeStore) AddToRole(_ context.Context, userID, role string) error {
	f.addRoleCalls++
	if f.failAddRole != nil {
		return f.failAddRole
	}
	if _, ok := f.knownRoles[role]; !ok {
		return fmt.Errorf("%w: role %q", ErrNotFound, role)
	}
	f.roles[userID] = append(f.roles[userID], role)
	return nil
}

func (f *fakeStore) RemoveFromRole(_ context.Context, userID, role string) error {
	f.removeRoleCalls++
	if f.failRemoveRole != nil {
		return f.failRemoveRole
	}
	current := f.roles[userID]
	for i, existing := range current {
		if existing == role {
			f.roles[userID] = append(current[:i], current[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) EnsureRole(_ context.Context, role string) error {
	f.ensureRoleCalls++
	f.knownRoles[role] = struct{}{}
	return nil
}

func (f *fakeStore) ClaimsForUser(_ context.Context, userID string) ([]ClaimRecord, error) {
	if _, ok := f.byID[userID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]ClaimRecord, len(f.claims[userID]))
	copy(out, f.claims[userID])
	return out, nil
}

func (f *fakeStore) AddClaim(_ context.Context, userID string, claim ClaimRecord) error {
	f.claims[userID] = append(f.claims[userID], claim)
	return nil
}

func (f *fakeStore) RemoveClaim(_ context.Context, userID string, claim ClaimRecord) error {
	current := f.claims[userID]
	for i, existing := range current {
		if existing == claim {
			f.claims[userID] = append(current[:i], current[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, username, passwordHash, email string) (UserIdentity, error) {
	key := strings.ToLower(username)
	if _, exists := f.byUsername[key]; exists {
		return UserIdentity{}, ErrConflict
	}
	identity := UserIdentity{ID: fmt.Sprintf("U%d", len(f.byID)+1), Username: username, Email: email}
	f.byUsername[key] = identity
	f.byID[identity.ID] = identity
	f.passwords[identity.ID] = passwordHash
	return identity, nil
}

func (f *fakeStore) ListUsers(_ context.Context, limit, offset int) ([]UserIdentity, error) {
	all := make([]UserIdentity, 0, len(f.byID))
	for _, identity := range f.byID {
		all = append(all, identity)
	}
	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Username) < strings.ToLower(all[j].Username)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID string) error {
	identity, ok := f.byID[userID]
	if !ok {
		return ErrNotFound
	}
	delete(f.byID, userID)
	delete(f.byUsername, strings.ToLower(identity.Username))
	delete(f.passwords, userID)
	delete(f.locked, userID)
	delete(f.roles, userID)
	delete(f.claims, userID)
	return nil
}

func (f *fakeStore) SetLockout(_ context.Context, userID string, until *time.Time) error {
	if _, ok := f.byID[userID]; !ok {
		return ErrNotFound
	}
	f.locked[userID] = until != nil && until.After(time.Now())
	return nil
}

func (f *fakeStore) FindUserIDByClaim(_ context.Context, claim ClaimRecord) (string, error) {
	for userID, claims := range f.claims {
		for _, existing := range claims {
			if existing == claim {
				return userID, nil
			}
		}
	}
	return "", ErrNotFound
}
