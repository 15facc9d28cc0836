package auth

import "strings"

// ClaimAssembler materializes the ordered claim set for one token issuance.
//
// Construction order: sub, uid, userId, one role claim per membership,
// email. A stored uid claim replaces the internal id in the uid slot only;
// userId always carries the internal id so downstream audit trails keep a
// stable reference even when correlation systems rely on the override.
type ClaimAssembler struct{}

// NewClaimAssembler returns a stateless assembler.
func NewClaimAssembler() ClaimAssembler {
	return ClaimAssembler{}
}

// Assemble builds the claim set for the given identity, role memberships
// (in assignment order) and stored claim records. Absent optional inputs
// omit the corresponding claim; there are no error conditions.
func (ClaimAssembler) Assemble(identity UserIdentity, roles []string, stored []ClaimRecord) TokenClaimSet {
	uid := identity.ID
	email := ""
	for _, c := range stored {
		switch c.Type {
		case ClaimUID:
			if c.Value != "" {
				uid = c.Value
			}
		case ClaimEmail:
			if email == "" {
				email = c.Value
			}
		}
	}
	if email == "" {
		email = identity.Email
	}

	set := TokenClaimSet{
		{Type: ClaimSubject, Value: identity.Username},
		{Type: ClaimUID, Value: uid},
		{Type: ClaimUserID, Value: identity.ID},
	}
	for _, role := range NormalizeRoles(roles) {
		set = append(set, ClaimRecord{Type: ClaimRole, Value: role})
	}
	if email != "" {
		set = append(set, ClaimRecord{Type: ClaimEmail, Value: email})
	}
	return set
}

// NormalizeRoles trims, lower-cases and deduplicates role names while
// preserving first-seen order.
func NormalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
