package broker

import "context"

// StateStore persists one-time CSRF state tokens. Implementations must
// make Consume atomic under concurrent access: of any number of callers
// presenting the same token, exactly one succeeds.
type StateStore interface {
	// Put durably records a fresh, unused state.
	Put(ctx context.Context, state OAuthState) error

	// Consume looks up the state and deletes it in one step. A missing,
	// expired, or already-consumed token returns ErrInvalidState. Expiry
	// takes priority over presence: a row past its window is treated as
	// absent even if not yet physically deleted.
	Consume(ctx context.Context, state string) (*OAuthState, error)
}

// TokenStore persists per-user, per-provider credentials with atomic
// upsert semantics.
type TokenStore interface {
	// Get returns the credential for (userID, provider), or
	// ErrNotConnected if none exists.
	Get(ctx context.Context, userID, provider string) (*Integration, error)

	// Upsert inserts or replaces the credential keyed by
	// (in.UserID, in.Provider). When in.RefreshToken is empty an existing
	// stored refresh token is preserved, never overwritten — providers
	// routinely omit the refresh token on refresh responses.
	Upsert(ctx context.Context, in Integration) error
}
