package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrInvalidToken means the auth service rejected the access token (expired or revoked).
	ErrInvalidToken = errors.New("invalid or expired access token")
	// ErrRefreshRejected means the refresh token can no longer be exchanged.
	ErrRefreshRejected = errors.New("refresh token rejected")
)

// User is the authenticated principal.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Tokens is a refreshed session.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type refreshResponse struct {
	Tokens
	User User `json:"user"`
}

type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

// Client talks to the hosted auth REST API.
type Client struct {
	http *resty.Client
}

// NewClient returns a client whose every call is bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("apikey", apiKey).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// User resolves the owner of accessToken.
func (c *Client) User(ctx context.Context, accessToken string) (*User, error) {
	var u User
	var apiErr authError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&u).
		SetError(&apiErr).
		Get("/auth/v1/user")
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.IsError():
		return nil, fmt.Errorf("get user: status %d: %s", resp.StatusCode(), apiErr.describe())
	}
	if u.ID == "" {
		return nil, ErrInvalidToken
	}
	return &u, nil
}

// Refresh exchanges refreshToken for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, *User, error) {
	var out refreshResponse
	var apiErr authError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/auth/v1/token")
	if err != nil {
		return nil, nil, fmt.Errorf("refresh session: %w", err)
	}
	if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized {
		return nil, nil, ErrRefreshRejected
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("refresh session: status %d: %s", resp.StatusCode(), apiErr.describe())
	}
	if out.AccessToken == "" || out.User.ID == "" {
		return nil, nil, ErrRefreshRejected
	}
	return &out.Tokens, &out.User, nil
}

func (e authError) describe() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Message != "":
		return e.Message
	}
	return e.Error
}
