package auth

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore owns the mapping from opaque refresh tokens to the
// username that may redeem them. Tokens are single use: Redeem atomically
// removes the mapping, so under concurrent redemption of the same token
// exactly one caller observes success.
type RefreshTokenStore interface {
	Issue(ctx context.Context, username string) (string, error)
	Redeem(ctx context.Context, token string) (string, error)
}

// MemoryRefreshTokenStore is the volatile in-process implementation.
// Entries survive until redeemed or process restart; a TTL can be set so
// stale tokens are refused at redemption time.
type MemoryRefreshTokenStore struct {
	mu      sync.Mutex
	entries map[string]RefreshTokenEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryRefreshOption configures MemoryRefreshTokenStore.
type MemoryRefreshOption func(*MemoryRefreshTokenStore)

// WithRefreshTTL bounds the redemption window of issued tokens. Zero means
// no expiry.
func WithRefreshTTL(ttl time.Duration) MemoryRefreshOption {
	return func(s *MemoryRefreshTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRefreshClock overrides the time source (useful for tests).
func WithRefreshClock(fn func() time.Time) MemoryRefreshOption {
	return func(s *MemoryRefreshTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewMemoryRefreshTokenStore constructs an empty store.
func NewMemoryRefreshTokenStore(opts ...MemoryRefreshOption) *MemoryRefreshTokenStore {
	s := &MemoryRefreshTokenStore{
		entries: make(map[string]RefreshTokenEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates an unguessable opaque token bound to username. There is
// no cap on outstanding tokens per user.
func (s *MemoryRefreshTokenStore) Issue(_ context.Context, username string) (string, error) {
	if username == "" {
		return "", ErrInvalidInput
	}
	u := uuid.New()
	token := hex.EncodeToString(u[:])

	entry := RefreshTokenEntry{Token: token, Username: username}
	if s.ttl > 0 {
		entry.ExpiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[token] = entry
	s.mu.Unlock()
	return token, nil
}

// Redeem removes the mapping and returns the bound username. A second call
// with the same token, or an expired token, returns ErrInvalidRefreshToken.
// Expired tokens are consumed on the failed attempt.
func (s *MemoryRefreshTokenStore) Redeem(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidRefreshToken
	}

	s.mu.Lock()
	entry, ok := s.entries[token]
	if ok {
		delete(s.entries, token)
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrInvalidRefreshToken
	}
	if !entry.ExpiresAt.IsZero() && s.now().After(entry.ExpiresAt) {
		return "", ErrInvalidRefreshToken
	}
	return entry.Username, nil
}

// Len reports the number of outstanding tokens.
func (s *MemoryRefreshTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
