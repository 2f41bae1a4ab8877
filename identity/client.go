// Package identity validates end-user bearer credentials against the
// external identity provider. User authentication itself is delegated
// there; this package only resolves a token to a user id.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidToken means the identity provider rejected the caller's
// bearer credential.
var ErrInvalidToken = errors.New("invalid user token")

// User is the subset of the identity provider's user record the broker
// needs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier resolves a bearer token to the user it belongs to.
type Verifier interface {
	GetUser(ctx context.Context, token string) (*User, error)
}

var _ Verifier = &Client{}

// Client talks to a GoTrue-style identity endpoint using a service key.
type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewClient creates an identity client for the given provider base URL.
func NewClient(baseURL, serviceKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, serviceKey: serviceKey, http: httpClient}
}

// GetUser validates the user token and returns the user it identifies.
// Any non-200 from the provider maps to ErrInvalidToken.
func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("identity: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.serviceKey)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK {
		return nil, ErrInvalidToken
	}
	var u User
	if err := json.NewDecoder(res.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("identity: decode user: %w", err)
	}
	if u.ID == "" {
		return nil, ErrInvalidToken
	}
	return &u, nil
}
