// Package identity decides who is checking out: a guest, a signed-in customer,
// or a customer whose session had to be refreshed.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmailRegistered  = errors.New("email belongs to a registered account")
	ErrSessionExpired   = errors.New("session expired")
	ErrIdentityRequired = errors.New("email or sign-in required")
	ErrInvalidEmail     = errors.New("invalid email")
)

// Credentials is everything a request may carry about its caller.
type Credentials struct {
	GuestEmail   string
	BearerToken  string
	AccessToken  string // cookie
	RefreshToken string // cookie
}

func (c Credentials) accessToken() string {
	if c.BearerToken != "" {
		return c.BearerToken
	}
	return c.AccessToken
}

// Identity is the resolved caller. Refreshed is set when the session was renewed and the
// caller must store the new tokens.
type Identity struct {
	UserID    string
	Email     string
	Guest     bool
	Refreshed *Tokens
}

// Authenticator is the auth service surface the resolver needs.
type Authenticator interface {
	User(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, *User, error)
}

// Registry tells whether an email owns an account.
type Registry interface {
	EmailRegistered(ctx context.Context, email string) (bool, error)
}

type Resolver struct {
	auth           Authenticator
	registry       Registry
	refreshTimeout time.Duration
	logger         *zap.Logger
}

func NewResolver(auth Authenticator, registry Registry, refreshTimeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{auth: auth, registry: registry, refreshTimeout: refreshTimeout, logger: logger}
}

// ResolveCheckout applies the checkout rules in order: an explicit guest email wins unless
// it is registered, then a session, then nothing.
func (r *Resolver) ResolveCheckout(ctx context.Context, creds Credentials) (Identity, error) {
	if email := strings.TrimSpace(creds.GuestEmail); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil {
			return Identity{}, ErrInvalidEmail
		}
		email = strings.ToLower(addr.Address)
		registered, err := r.registry.EmailRegistered(ctx, email)
		if err != nil {
			return Identity{}, fmt.Errorf("check email: %w", err)
		}
		if registered {
			return Identity{}, ErrEmailRegistered
		}
		return Identity{Email: email, Guest: true}, nil
	}
	if creds.accessToken() == "" && creds.RefreshToken == "" {
		return Identity{}, ErrIdentityRequired
	}
	return r.Authenticate(ctx, creds)
}

// Authenticate resolves a signed-in caller. An expired access token gets exactly one
// refresh attempt bounded by the refresh timeout.
func (r *Resolver) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	if token := creds.accessToken(); token != "" {
		u, err := r.auth.User(ctx, token)
		if err == nil {
			return Identity{UserID: u.ID, Email: strings.ToLower(u.Email)}, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			return Identity{}, fmt.Errorf("resolve session: %w", err)
		}
	}
	if creds.RefreshToken == "" {
		return Identity{}, ErrSessionExpired
	}

	refreshCtx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
	defer cancel()
	tokens, u, err := r.auth.Refresh(refreshCtx, creds.RefreshToken)
	if err != nil {
		r.logger.Info("session refresh failed", zap.Error(err))
		return Identity{}, ErrSessionExpired
	}
	return Identity{UserID: u.ID, Email: strings.ToLower(u.Email), Refreshed: tokens}, nil
}
