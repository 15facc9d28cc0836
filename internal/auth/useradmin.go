package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// disableHorizon is how far in the future a disable pushes the lockout.
// Effectively permanent until an explicit enable.
const disableHorizonYears = 100

// UserSummary is the admin-facing view of one account: identity, role
// memberships, the external uid binding if any, and lockout state.
type UserSummary struct {
	UserIdentity
	Roles    []string `json:"roles"`
	UID      string   `json:"uid,omitempty"`
	Disabled bool     `json:"disabled"`
}

// CreateUserParams carries the inputs for admin user creation. UID is
// optional; when set the new account is bound to that external id via a
// stored uid claim, which must not belong to any other user.
type CreateUserParams struct {
	Username string
	Password string
	Email    string
	Roles    []string
	UID      string
}

// UserAdminService implements the admin user lifecycle: creation with role
// assignment, external uid binding, disable/enable via lockout, listing
// and deletion. All role inputs validate against the same allow-list the
// provisioning service uses.
type UserAdminService struct {
	store   Store
	allowed map[string]struct{}
	now     func() time.Time
}

// NewUserAdminService constructs the service with the given allow-list,
// defaulting to DefaultAllowedRoles.
func NewUserAdminService(store Store, allowedRoles []string) (*UserAdminService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	allowed, err := buildRoleAllowList(allowedRoles)
	if err != nil {
		return nil, err
	}
	return &UserAdminService{store: store, allowed: allowed, now: time.Now}, nil
}

// CreateUser registers a new account, assigns the requested roles and
// binds the optional external uid. Validation happens before any store
// write; a uid already bound to another user is ErrConflict.
func (s *UserAdminService) CreateUser(ctx context.Context, p CreateUserParams) (UserSummary, error) {
	username := strings.TrimSpace(p.Username)
	if username == "" {
		return UserSummary{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if p.Password == "" {
		return UserSummary{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	roles := NormalizeRoles(p.Roles)
	if err := validateAllowedRoles(s.allowed, roles); err != nil {
		return UserSummary{}, err
	}
	uid := strings.TrimSpace(p.UID)
	if uid != "" {
		if err := s.ensureUIDUnbound(ctx, uid, ""); err != nil {
			return UserSummary{}, err
		}
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return UserSummary{}, err
	}
	identity, err := s.store.Users(ctx).CreateUser(ctx, username, hash, strings.TrimSpace(p.Email))
	if err != nil {
		return UserSummary{}, err
	}

	roleStore := s.store.Roles(ctx)
	for _, role := range roles {
		if err := roleStore.EnsureRole(ctx, role); err != nil {
			return UserSummary{}, fmt.Errorf("ensure role %q: %w", role, err)
		}
		if err := roleStore.AddToRole(ctx, identity.ID, role); err != nil {
			return UserSummary{}, fmt.Errorf("assign role %q: %w", role, err)
		}
	}
	if uid != "" {
		claim := ClaimRecord{Type: ClaimUID, Value: uid}
		if err := s.store.Claims(ctx).AddClaim(ctx, identity.ID, claim); err != nil {
			return UserSummary{}, fmt.Errorf("bind uid: %w", err)
		}
	}
	return s.summary(ctx, identity)
}

// SetUserUID replaces the user's external uid binding. Any existing uid
// claims are removed first so at most one remains; a uid held by another
// user is ErrConflict.
func (s *UserAdminService) SetUserUID(ctx context.Context, userID, uid string) (UserSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserSummary{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return UserSummary{}, fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}

	identity, err := s.store.Identities(ctx).FindByID(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	if err := s.ensureUIDUnbound(ctx, uid, userID); err != nil {
		return UserSummary{}, err
	}

	claimStore := s.store.Claims(ctx)
	existing, err := claimStore.ClaimsForUser(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	for _, claim := range existing {
		if claim.Type != ClaimUID {
			continue
		}
		if err := claimStore.RemoveClaim(ctx, userID, claim); err != nil {
			return UserSummary{}, fmt.Errorf("remove uid claim: %w", err)
		}
	}
	if err := claimStore.AddClaim(ctx, userID, ClaimRecord{Type: ClaimUID, Value: uid}); err != nil {
		return UserSummary{}, fmt.Errorf("bind uid: %w", err)
	}
	return s.summary(ctx, identity)
}

// FindByUID resolves the account bound to the external uid.
func (s *UserAdminService) FindByUID(ctx context.Context, uid string) (UserSummary, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return UserSummary{}, fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}
	userID, err := s.store.Users(ctx).FindUserIDByClaim(ctx, ClaimRecord{Type: ClaimUID, Value: uid})
	if err != nil {
		return UserSummary{}, err
	}
	identity, err := s.store.Identities(ctx).FindByID(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	return s.summary(ctx, identity)
}

// ListUsers pages through accounts ordered by canonical username. A
// non-positive limit falls back to 50; a negative offset to 0.
func (s *UserAdminService) ListUsers(ctx context.Context, limit, offset int) ([]UserSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	identities, err := s.store.Users(ctx).ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	summaries := make([]UserSummary, 0, len(identities))
	for _, identity := range identities {
		summary, err := s.summary(ctx, identity)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DisableUser locks the account far enough into the future to be
// effectively permanent.
func (s *UserAdminService) DisableUser(ctx context.Context, userID string) (UserSummary, error) {
	identity, err := s.store.Identities(ctx).FindByID(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	until := s.now().AddDate(disableHorizonYears, 0, 0)
	if err := s.store.Users(ctx).SetLockout(ctx, userID, &until); err != nil {
		return UserSummary{}, err
	}
	return s.summary(ctx, identity)
}

// EnableUser clears any lockout on the account.
func (s *UserAdminService) EnableUser(ctx context.Context, userID string) (UserSummary, error) {
	identity, err := s.store.Identities(ctx).FindByID(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	if err := s.store.Users(ctx).SetLockout(ctx, userID, nil); err != nil {
		return UserSummary{}, err
	}
	return s.summary(ctx, identity)
}

// DeleteUser removes the account and, through the store, its role and
// claim attachments. Outstanding refresh tokens are refused at redemption
// when the identity no longer resolves.
func (s *UserAdminService) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.store.Identities(ctx).FindByID(ctx, userID); err != nil {
		return err
	}
	return s.store.Users(ctx).DeleteUser(ctx, userID)
}

// ensureUIDUnbound fails with ErrConflict when the uid claim belongs to a
// user other than exceptID.
func (s *UserAdminService) ensureUIDUnbound(ctx context.Context, uid, exceptID string) error {
	owner, err := s.store.Users(ctx).FindUserIDByClaim(ctx, ClaimRecord{Type: ClaimUID, Value: uid})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if owner == exceptID {
		return nil
	}
	return fmt.Errorf("%w: uid %q is already assigned", ErrConflict, uid)
}

func (s *UserAdminService) summary(ctx context.Context, identity UserIdentity) (UserSummary, error) {
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, identity.ID)
	if err != nil {
		return UserSummary{}, err
	}
	claims, err := s.store.Claims(ctx).ClaimsForUser(ctx, identity.ID)
	if err != nil {
		return UserSummary{}, err
	}
	disabled, err := s.store.Credentials(ctx).IsLockedOut(ctx, identity.ID)
	if err != nil {
		return UserSummary{}, err
	}

	summary := UserSummary{UserIdentity: identity, Roles: roles, Disabled: disabled}
	for _, claim := range claims {
		if claim.Type == ClaimUID {
			summary.UID = claim.Value
			break
		}
	}
	return summary, nil
}
