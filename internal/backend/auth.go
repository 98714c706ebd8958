package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// TokenResponse is the session the auth endpoints return.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

// AuthUser is the user object embedded in auth responses.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (TokenResponse, error) {
	var tok TokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
		token:  c.apiKey,
	}, &tok)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign in: %w", err)
	}
	return tok, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	var tok TokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		token:  c.apiKey,
	}, &tok)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("refresh session: %w", err)
	}
	return tok, nil
}

// SignUp registers a user. Projects that require email confirmation return
// a response without an access token.
func (c *Client) SignUp(ctx context.Context, email, password string) (TokenResponse, error) {
	var tok TokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
		token:  c.apiKey,
	}, &tok)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign up: %w", err)
	}
	return tok, nil
}

// SignOut revokes accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// GetUser returns the signed-in user's profile as the backend sends it.
func (c *Client) GetUser(ctx context.Context) (json.RawMessage, error) {
	if c.UserID() == "" {
		return nil, ErrUnauthenticated
	}
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user"}, &raw); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return raw, nil
}
