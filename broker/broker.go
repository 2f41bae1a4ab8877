package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Google endpoint and API defaults. Overridable through Options so tests
// can point the broker at a stub provider.
const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	sheetsBaseURL  = "https://sheets.googleapis.com/v4/spreadsheets"
	formsBaseURL   = "https://forms.googleapis.com/v1/forms"
)

// DefaultScopes is requested when the caller does not name any.
const DefaultScopes = "https://www.googleapis.com/auth/forms.responses.readonly https://www.googleapis.com/auth/spreadsheets.readonly"

// StateTTL is the validity window of a state token.
const StateTTL = 5 * time.Minute

// Options configures a Broker. ClientID, ClientSecret, RedirectURL,
// States and Tokens are required; everything else has Google defaults.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	FrontendURL  string

	AuthURL       string
	TokenURL      string
	SheetsBaseURL string
	FormsBaseURL  string

	States StateStore
	Tokens TokenStore

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Broker mediates between end-user sessions and the provider's OAuth2
// token endpoint, persisting and refreshing delegated credentials
// server-side. All durable state lives in the injected stores; a Broker
// holds no mutable state of its own and is safe for concurrent use.
type Broker struct {
	opts   Options
	states StateStore
	tokens TokenStore
	logger *slog.Logger
}

// New creates a Broker from the given options.
func New(opts Options) (*Broker, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" || opts.RedirectURL == "" {
		return nil, errors.New("broker: client id, client secret and redirect url are required")
	}
	if opts.States == nil || opts.Tokens == nil {
		return nil, errors.New("broker: state and token stores are required")
	}
	if opts.AuthURL == "" {
		opts.AuthURL = googleAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = googleTokenURL
	}
	if opts.SheetsBaseURL == "" {
		opts.SheetsBaseURL = sheetsBaseURL
	}
	if opts.FormsBaseURL == "" {
		opts.FormsBaseURL = formsBaseURL
	}
	if opts.FrontendURL == "" {
		opts.FrontendURL = "/"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broker{opts: opts, states: opts.States, tokens: opts.Tokens, logger: opts.Logger}, nil
}

// oauthConfig builds the oauth2 client config for one request's scopes.
func (b *Broker) oauthConfig(scopes string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.opts.ClientID,
		ClientSecret: b.opts.ClientSecret,
		RedirectURL:  b.opts.RedirectURL,
		Scopes:       strings.Fields(scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  b.opts.AuthURL,
			TokenURL: b.opts.TokenURL,
		},
	}
}

// httpContext threads a custom HTTP client (when configured) into the
// oauth2 package's transport lookup.
func (b *Broker) httpContext(ctx context.Context) context.Context {
	if b.opts.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.opts.HTTPClient)
	}
	return ctx
}

// BeginAuthorization records a fresh state token bound to userID and
// returns the provider consent URL. No state is persisted on failure.
func (b *Broker) BeginAuthorization(ctx context.Context, userID, scopes string, meta RedirectMeta) (string, error) {
	if strings.TrimSpace(scopes) == "" {
		scopes = DefaultScopes
	}
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	st := OAuthState{
		State:     state,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(StateTTL),
	}
	if err := b.states.Put(ctx, st); err != nil {
		return "", err
	}
	b.logger.Info("authorization started", "user_id", userID, "scopes", scopes)
	cfg := b.oauthConfig(scopes)
	return cfg.AuthCodeURL(WrapState(state, meta),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// CompleteAuthorization consumes the state, exchanges the authorization
// code for tokens, persists the credential, and returns the frontend URL
// the browser should be redirected to. A replayed or expired state fails
// with ErrInvalidState before any network call; an exchange failure
// persists nothing.
func (b *Broker) CompleteAuthorization(ctx context.Context, code, stateParam string) (string, error) {
	state, meta := SplitState(stateParam)
	st, err := b.states.Consume(ctx, state)
	if err != nil {
		return "", err
	}
	cfg := b.oauthConfig("")
	tok, err := cfg.Exchange(b.httpContext(ctx), code)
	if err != nil {
		return "", providerError("exchange", err)
	}
	in := integrationFromToken(st.UserID, tok)
	if err := b.tokens.Upsert(ctx, in); err != nil {
		return "", err
	}
	b.logger.Info("authorization completed", "user_id", st.UserID, "provider", ProviderGoogle)
	return b.frontendRedirect(meta), nil
}

// AccessToken returns an access token valid for immediate use for the
// given user, refreshing transparently when the stored one is stale. A
// failed refresh leaves the stored credential untouched.
func (b *Broker) AccessToken(ctx context.Context, userID string) (string, error) {
	in, err := b.tokens.Get(ctx, userID, ProviderGoogle)
	if err != nil {
		return "", err
	}
	if !in.NeedsRefresh(time.Now()) {
		return in.AccessToken, nil
	}
	if in.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	cfg := b.oauthConfig(in.Scope)
	// A token value holding only the refresh token forces an immediate
	// refresh grant on the first Token() call.
	ts := cfg.TokenSource(b.httpContext(ctx), &oauth2.Token{RefreshToken: in.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		return "", providerError("refresh", err)
	}
	updated := integrationFromToken(userID, tok)
	if updated.Scope == "" {
		updated.Scope = in.Scope
	}
	if err := b.tokens.Upsert(ctx, updated); err != nil {
		return "", err
	}
	b.logger.Info("access token refreshed", "user_id", userID, "provider", ProviderGoogle)
	return tok.AccessToken, nil
}

// Status summarizes the caller's connection without exposing tokens.
func (b *Broker) Status(ctx context.Context, userID string) (*Status, error) {
	in, err := b.tokens.Get(ctx, userID, ProviderGoogle)
	if errors.Is(err, ErrNotConnected) {
		return &Status{Connected: false}, nil
	} else if err != nil {
		return nil, err
	}
	s := &Status{Connected: true, Scope: in.Scope}
	if !in.ExpiresAt.IsZero() {
		s.ExpiresAt = in.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return s, nil
}

// integrationFromToken maps a provider token response onto the stored
// credential shape. An empty RefreshToken is preserved by the stores.
func integrationFromToken(userID string, tok *oauth2.Token) Integration {
	scope, _ := tok.Extra("scope").(string)
	return Integration{
		UserID:       userID,
		Provider:     ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        scope,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
}

// providerError converts an oauth2 retrieval failure into a ProviderError
// carrying the provider's response body.
func providerError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &ProviderError{Op: op, Status: status, Body: string(re.Body)}
	}
	return fmt.Errorf("token %s failed: %w", op, err)
}

// frontendRedirect builds the post-auth browser redirect, honoring a
// same-site redirect path from the wrapped metadata.
func (b *Broker) frontendRedirect(meta RedirectMeta) string {
	u, err := url.Parse(b.opts.FrontendURL)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	if strings.HasPrefix(meta.RedirectTo, "/") {
		u.Path = meta.RedirectTo
	}
	q := u.Query()
	q.Set("google_connected", "1")
	u.RawQuery = q.Encode()
	return u.String()
}
