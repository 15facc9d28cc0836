package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultAllowedRoles is the fixed role allow-list.
var DefaultAllowedRoles = []string{"admin", "dispatcher", "booker", "driver"}

// RoleChange reports a provisioning outcome: the role set before the call,
// the effective set after it, and whether any store write happened.
type RoleChange struct {
	Previous []string `json:"previous_roles"`
	Current  []string `json:"roles"`
	Changed  bool     `json:"changed"`
}

// RoleProvisioningService applies admin-driven role changes. SetRole
// enforces the mutually-exclusive role model; UpdateRoles replaces the full
// set. Both validate against the allow-list before touching the store and
// create allow-listed roles on demand.
type RoleProvisioningService struct {
	store   Store
	allowed map[string]struct{}
}

// NewRoleProvisioningService constructs the service with the given
// allow-list, defaulting to DefaultAllowedRoles.
func NewRoleProvisioningService(store Store, allowedRoles []string) (*RoleProvisioningService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	allowed, err := buildRoleAllowList(allowedRoles)
	if err != nil {
		return nil, err
	}
	return &RoleProvisioningService{store: store, allowed: allowed}, nil
}

// buildRoleAllowList normalizes the configured role names, falling back to
// DefaultAllowedRoles when none are given.
func buildRoleAllowList(allowedRoles []string) (map[string]struct{}, error) {
	if len(allowedRoles) == 0 {
		allowedRoles = DefaultAllowedRoles
	}
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range NormalizeRoles(allowedRoles) {
		allowed[role] = struct{}{}
	}
	if len(allowed) == 0 {
		return nil, errors.New("auth: role allow-list is empty")
	}
	return allowed, nil
}

// SetRole assigns exactly one role, removing any others. If the user
// already holds exactly the requested role the call is a no-op with zero
// store writes, reported via Changed=false.
func (s *RoleProvisioningService) SetRole(ctx context.Context, userID, requestedRole string) (RoleChange, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return RoleChange{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	normalized := NormalizeRoles([]string{requestedRole})
	if len(normalized) != 1 {
		return RoleChange{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := normalized[0]
	if err := s.validateRoles([]string{role}); err != nil {
		return RoleChange{}, err
	}

	if _, err := s.store.Identities(ctx).FindByID(ctx, userID); err != nil {
		return RoleChange{}, err
	}

	roleStore := s.store.Roles(ctx)
	current, err := roleStore.RolesForUser(ctx, userID)
	if err != nil {
		return RoleChange{}, err
	}
	if len(current) == 1 && current[0] == role {
		return RoleChange{Previous: current, Current: current, Changed: false}, nil
	}
	return s.replace(ctx, roleStore, userID, current, []string{role})
}

// UpdateRoles replaces the user's full role set. An empty requested set is
// permitted and means "no roles".
func (s *RoleProvisioningService) UpdateRoles(ctx context.Context, userID string, requestedRoles []string) (RoleChange, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return RoleChange{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	target := NormalizeRoles(requestedRoles)
	if err := s.validateRoles(target); err != nil {
		return RoleChange{}, err
	}

	if _, err := s.store.Identities(ctx).FindByID(ctx, userID); err != nil {
		return RoleChange{}, err
	}

	roleStore := s.store.Roles(ctx)
	current, err := roleStore.RolesForUser(ctx, userID)
	if err != nil {
		return RoleChange{}, err
	}
	return s.replace(ctx, roleStore, userID, current, target)
}

func (s *RoleProvisioningService) validateRoles(roles []string) error {
	return validateAllowedRoles(s.allowed, roles)
}

// validateAllowedRoles rejects any name outside the allow-list, listing
// every offender. No store writes happen on failure.
func validateAllowedRoles(allowed map[string]struct{}, roles []string) error {
	var invalid []string
	for _, role := range roles {
		if _, ok := allowed[role]; !ok {
			invalid = append(invalid, role)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRole, strings.Join(invalid, ", "))
	}
	return nil
}

// replace removes current memberships then adds the target set. The
// remove-then-add sequence is not transactional: a failure after removal
// leaves the user with fewer roles than requested, surfaced as
// ErrProvisioningPartial rather than rolled back.
func (s *RoleProvisioningService) replace(ctx context.Context, roleStore RoleStore, userID string, current, target []string) (RoleChange, error) {
	for _, role := range target {
		if err := roleStore.EnsureRole(ctx, role); err != nil {
			return RoleChange{}, fmt.Errorf("ensure role %q: %w", role, err)
		}
	}

	removed := false
	for _, role := range current {
		if err := roleStore.RemoveFromRole(ctx, userID, role); err != nil {
			if removed {
				return RoleChange{}, fmt.Errorf("%w: removing %q: %v", ErrProvisioningPartial, role, err)
			}
			return RoleChange{}, fmt.Errorf("remove role %q: %w", role, err)
		}
		removed = true
	}

	var applied []string
	for _, role := range target {
		if err := roleStore.AddToRole(ctx, userID, role); err != nil {
			if removed || len(applied) > 0 {
				return RoleChange{}, fmt.Errorf("%w: adding %q: %v", ErrProvisioningPartial, role, err)
			}
			return RoleChange{}, fmt.Errorf("add role %q: %w", role, err)
		}
		applied = append(applied, role)
	}

	return RoleChange{Previous: current, Current: applied, Changed: true}, nil
}
