package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState means the callback presented a state token that is
	// unknown, expired, or already consumed. Terminal for that flow; the
	// user must restart authorization.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotConnected means no credential row exists for the caller.
	ErrNotConnected = errors.New("no integration")

	// ErrNoRefreshToken means the stored access token is stale and the
	// provider never granted a refresh token, so re-authorization is the
	// only way forward.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// ProviderError wraps a non-success response from the provider's token
// endpoint. The provider's body is carried through for diagnostics and is
// never persisted.
type ProviderError struct {
	Op     string // "exchange" or "refresh"
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("token %s failed: provider returned %d: %s", e.Op, e.Status, e.Body)
}
