package google

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNotAuthenticated is returned by RefreshIfNeeded before Authenticate succeeded.
var ErrNotAuthenticated = errors.New("not authenticated")

// Authenticator yields an authenticated Gmail service for one account.
// The context passed to Authenticate is retained for token refreshes and
// should live as long as the returned service.
type Authenticator interface {
	Authenticate(ctx context.Context) (*gmail.Service, error)
	RefreshIfNeeded(ctx context.Context) error
	HasRequiredScope() bool
}

// FileAuthenticator reads the per-account token file.
type FileAuthenticator struct {
	account string
	path    string
	config  *oauth2.Config

	mu      sync.Mutex
	ts      oauth2.TokenSource
	granted string
}

// NewFileAuthenticator returns an authenticator for account's token file.
func NewFileAuthenticator(account string) (*FileAuthenticator, error) {
	if err := ValidateAccountName(account); err != nil {
		return nil, err
	}
	return &FileAuthenticator{
		account: account,
		path:    TokenFilePath(account),
		config:  OAuthConfig(),
	}, nil
}

// Authenticate loads the token, refreshes it once to prove it is usable and
// builds a Gmail service on top of it.
func (a *FileAuthenticator) Authenticate(ctx context.Context) (*gmail.Service, error) {
	tok, err := readTokenFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w; run 'inboxprune auth --account %s'", a.account, err, a.account)
	}

	ts := a.config.TokenSource(ctx, tok)
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("cached token for account %s is invalid: %w", a.account, err)
	}

	a.mu.Lock()
	a.ts = ts
	if scope, ok := fresh.Extra("scope").(string); ok {
		a.granted = scope
	}
	a.mu.Unlock()

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(newHTTPClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// RefreshIfNeeded forces the token source to refresh an expired access token.
func (a *FileAuthenticator) RefreshIfNeeded(ctx context.Context) error {
	a.mu.Lock()
	ts := a.ts
	a.mu.Unlock()
	if ts == nil {
		return ErrNotAuthenticated
	}
	if _, err := ts.Token(); err != nil {
		return fmt.Errorf("failed to refresh token for account %s: %w", a.account, err)
	}
	return nil
}

// HasRequiredScope reports whether the granted scopes allow permanent
// deletion. When the token endpoint did not report a grant, the requested
// scopes are assumed.
func (a *FileAuthenticator) HasRequiredScope() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ts == nil {
		return false
	}
	if a.granted == "" {
		return true
	}
	return scopesSatisfy(a.granted, RequiredScopes)
}
