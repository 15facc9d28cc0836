package auth

import "time"

// UserIdentity is the immutable view of a user held by the identity store.
// The auth core only reads it; provisioning mutates role and claim state
// through the capability interfaces in store.go.
type UserIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// ClaimRecord is a typed key/value fact attached to a user in the claim
// store. Records are added and removed whole, never updated in place.
type ClaimRecord struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Recognized claim types. A stored claim of type ClaimUID overrides the
// internal id in the assembled set; ClaimUserID is never overridden so
// audit trails always keep one stable identity reference.
const (
	ClaimSubject = "sub"
	ClaimUID     = "uid"
	ClaimUserID  = "userId"
	ClaimRole    = "role"
	ClaimEmail   = "email"
)

// TokenClaimSet is the ordered claim sequence materialized for a single
// minting call. It is never persisted.
type TokenClaimSet []ClaimRecord

// First returns the value of the first claim with the given type.
func (s TokenClaimSet) First(claimType string) (string, bool) {
	for _, c := range s {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// Values returns every value recorded for the given claim type, in order.
func (s TokenClaimSet) Values(claimType string) []string {
	var out []string
	for _, c := range s {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// AccessToken is a signed, self-contained bearer credential.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshTokenEntry maps an opaque refresh token to the user that may
// redeem it. ExpiresAt is zero when the owning store has no TTL.
type RefreshTokenEntry struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}
