package broker

import "time"

// ProviderGoogle is the only provider this broker currently speaks to.
const ProviderGoogle = "google"

// refreshMargin is subtracted from a credential's expiry when deciding
// whether it is still usable, covering clock skew and in-flight latency.
const refreshMargin = 30 * time.Second

// OAuthState represents one in-flight authorization attempt. A row is
// written immediately before the user is redirected to the consent screen
// and consumed exactly once by the callback.
type OAuthState struct {
	State     string    `bson:"state" json:"state"`
	UserID    string    `bson:"user_id" json:"user_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the state is past its validity window.
func (s *OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Integration is one user's delegated-access grant to one provider,
// keyed by (UserID, Provider).
type Integration struct {
	UserID       string    `bson:"user_id" json:"user_id"`
	Provider     string    `bson:"provider" json:"provider"`
	AccessToken  string    `bson:"access_token" json:"access_token"`
	RefreshToken string    `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	Scope        string    `bson:"scope,omitempty" json:"scope,omitempty"`
	TokenType    string    `bson:"token_type,omitempty" json:"token_type,omitempty"`
	ExpiresAt    time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"` // zero if unknown
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// NeedsRefresh reports whether the stored access token must be refreshed
// before use. The boundary is inclusive: a token expiring exactly
// refreshMargin from now is already considered stale. An unknown expiry
// always refreshes.
func (in *Integration) NeedsRefresh(now time.Time) bool {
	if in.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(in.ExpiresAt.Add(-refreshMargin))
}

// Status is the connection summary returned to the client. It never
// carries token material.
type Status struct {
	Connected bool   `json:"connected"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
