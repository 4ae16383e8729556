// Package api is the REST client for the chat backend's credential service
// (login, register, logout, profile) and its directory/history service
// (/people, /messages/:peerId). Authentication is cookie-based; the client
// carries a cookie jar so the token set at login rides along on every
// later request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/duochat/duochat/pkg/wire"
)

// ErrUnauthenticated is returned by Profile when no valid session cookie
// is present.
var ErrUnauthenticated = errors.New("not authenticated")

// statusMessages are the user-visible messages for credential errors,
// keyed by HTTP status.
var statusMessages = map[int]string{
	http.StatusUnauthorized: "Incorrect username or password",
	http.StatusNotFound:     "User not found",
	http.StatusConflict:     "Username already exists",
}

// Error is a credential-service error with a user-visible message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Person is one entry of the user directory.
type Person struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Client talks to the REST side of the backend.
type Client struct {
	base string
	http *http.Client
}

// New creates a Client for the given base URL.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		base: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	ID string `json:"id"`
}

type profileResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Login authenticates with the credential service and returns the user id.
// The session cookie is stored in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	return c.authenticate(ctx, "/login", username, password)
}

// Register creates a new account and returns the assigned user id.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	return c.authenticate(ctx, "/register", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (string, error) {
	body, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return auth.ID, nil
}

// Logout asks the credential service to invalidate the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}

// Profile restores the identity bound to the session cookie. It returns
// ErrUnauthenticated when the cookie is absent or rejected.
func (c *Client) Profile(ctx context.Context) (userID, username string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/profile", nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", "", ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("profile returned status %d", resp.StatusCode)
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", "", fmt.Errorf("failed to decode profile response: %w", err)
	}
	return profile.UserID, profile.Username, nil
}

// People fetches the full user directory.
func (c *Client) People(ctx context.Context) ([]Person, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/people", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("people request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("people returned status %d", resp.StatusCode)
	}

	var people []Person
	if err := json.NewDecoder(resp.Body).Decode(&people); err != nil {
		return nil, fmt.Errorf("failed to decode people response: %w", err)
	}
	return people, nil
}

// Messages fetches the full ordered history with the given peer,
// oldest first.
func (c *Client) Messages(ctx context.Context, peerID string) ([]wire.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/messages/"+peerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messages request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messages returned status %d", resp.StatusCode)
	}

	var msgs []wire.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages response: %w", err)
	}
	return msgs, nil
}

// checkStatus maps credential-service error codes to their user-visible
// messages.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if msg, ok := statusMessages[resp.StatusCode]; ok {
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
